package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostMatcher_Match(t *testing.T) {
	m := NewHostMatcher([]string{"instagram.com", "cdninstagram", "fbcdn", " "})

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://www.instagram.com/p/abc/", true},
		{"https://scontent-lhr8-1.cdninstagram.com/v/t50/video.mp4", true},
		{"https://video.xx.fbcdn.net/v/t42/clip.mp4", true},
		{"https://INSTAGRAM.COM/reel/1", true},
		{"https://example.com/instagram.com/video.mp4", false},
		{"https://cdn.example.com/video.mp4", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.Match(tt.url))
		})
	}
}

func TestHostMatcher_MatchAny(t *testing.T) {
	m := NewHostMatcher([]string{"fbcdn"})

	assert.True(t, m.MatchAny("https://cdn.example.com/a.mp4", "https://video.fbcdn.net/"))
	assert.False(t, m.MatchAny("https://cdn.example.com/a.mp4", ""))

	var nilMatcher *HostMatcher
	assert.False(t, nilMatcher.Match("https://video.fbcdn.net/"))
}

func TestNormalizeMediaURL(t *testing.T) {
	m := NewHostMatcher([]string{"cdninstagram", "fbcdn"})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips byte slice params on gated host",
			input:    "https://scontent.cdninstagram.com/v/clip.mp4?efg=abc&bytestart=0&byteend=1024",
			expected: "https://scontent.cdninstagram.com/v/clip.mp4?efg=abc",
		},
		{
			name:     "keeps params on other hosts",
			input:    "https://cdn.example.com/clip.mp4?bytestart=0&byteend=1024",
			expected: "https://cdn.example.com/clip.mp4?bytestart=0&byteend=1024",
		},
		{
			name:     "drops query entirely when only range params",
			input:    " https://video.fbcdn.net/clip.mp4?range=0-100 ",
			expected: "https://video.fbcdn.net/clip.mp4",
		},
		{
			name:     "untouched without range params",
			input:    "https://video.fbcdn.net/clip.mp4?oh=1&oe=2",
			expected: "https://video.fbcdn.net/clip.mp4?oh=1&oe=2",
		},
		{
			name:     "rejects non http",
			input:    "blob:https://www.instagram.com/1234",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeMediaURL(tt.input, m))
		})
	}
}

func TestIsSegmentedStream(t *testing.T) {
	assert.True(t, IsSegmentedStream("https://cdn.example.com/live/master.m3u8"))
	assert.True(t, IsSegmentedStream("https://cdn.example.com/live/MASTER.M3U8?token=1"))
	assert.False(t, IsSegmentedStream("https://cdn.example.com/clip.mp4?list=a.m3u8"))
	assert.False(t, IsSegmentedStream("https://cdn.example.com/clip.mp4"))
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "https://www.example.com", OriginOf("https://www.example.com/watch?v=1"))
	assert.Equal(t, "http://localhost:8080", OriginOf("http://localhost:8080/page"))
	assert.Equal(t, "", OriginOf("/relative/path"))
	assert.Equal(t, "", OriginOf(""))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "My Clip part 1.mp4", SanitizeFileName("My: Clip/part  1.mp4"))
	assert.Equal(t, "video", SanitizeFileName(" <>|"))
	assert.Equal(t, "video", SanitizeFileName(".."))
}
