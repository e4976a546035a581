package repo

import (
	"testing"
)

func TestBarePath(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https with .git", "https://github.com/acme/widget.git", "/cache/github.com/acme/widget.git", false},
		{"https without .git", "https://github.com/acme/widget", "/cache/github.com/acme/widget.git", false},
		{"https nested org", "https://gitlab.example.com/group/sub/widget.git", "/cache/gitlab.example.com/group/sub/widget.git", false},
		{"ssh", "git@github.com:acme/widget.git", "/cache/github.com/acme/widget.git", false},
		{"ssh without .git", "git@github.com:acme/widget", "/cache/github.com/acme/widget.git", false},
		{"http", "http://host.local/o/r", "/cache/host.local/o/r.git", false},
		{"trailing slash", "https://github.com/acme/widget/", "/cache/github.com/acme/widget.git", false},
		{"empty", "", "", true},
		{"no path", "https://github.com", "", true},
		{"ssh missing colon", "git@github.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BarePath("/cache", tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BarePath(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BarePath(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestBarePathSSHMatchesHTTPS(t *testing.T) {
	ssh, err := BarePath("/cache", "git@github.com:acme/widget.git")
	if err != nil {
		t.Fatal(err)
	}
	https, err := BarePath("/cache", "https://github.com/acme/widget")
	if err != nil {
		t.Fatal(err)
	}
	if ssh != https {
		t.Errorf("SSH path %q != HTTPS path %q", ssh, https)
	}
}

func TestRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/acme/widget.git", "widget"},
		{"git@github.com:acme/widget.git", "widget"},
		{"https://gitlab.example.com/group/sub/widget", "widget"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := RepoName(tt.url)
			if err != nil {
				t.Fatalf("RepoName(%q) error = %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("RepoName(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
