package resolver

import "testing"

func TestBuildViewURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		path   string
		want   string
		wantOK bool
	}{
		{
			name:   "bare host with absolute path",
			base:   "example.com",
			path:   "/posts/a",
			want:   "https://example.com/posts/a",
			wantOK: true,
		},
		{
			name:   "relative path against directory base",
			base:   "https://example.com/blog/",
			path:   "post-1",
			want:   "https://example.com/blog/post-1",
			wantOK: true,
		},
		{
			name:   "absolute path replaces base path",
			base:   "https://example.com/blog/",
			path:   "/about",
			want:   "https://example.com/about",
			wantOK: true,
		},
		{
			name:   "http scheme preserved",
			base:   "http://example.com",
			path:   "/x",
			want:   "http://example.com/x",
			wantOK: true,
		},
		{
			name:   "empty base",
			base:   "",
			path:   "/x",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BuildViewURL(tt.base, tt.path)
			if ok != tt.wantOK {
				t.Fatalf("BuildViewURL(%q, %q) ok = %v, want %v", tt.base, tt.path, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("BuildViewURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}
