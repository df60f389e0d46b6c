package s3

import "testing"

func TestPublicBase(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"aws", Config{Bucket: "builds", Region: "eu-west-1"}, "https://builds.s3.eu-west-1.amazonaws.com"},
		{"custom endpoint", Config{Bucket: "builds", Endpoint: "http://localhost:9000/"}, "http://localhost:9000/builds"},
		{"public override", Config{Bucket: "builds", Endpoint: "http://minio:9000", PublicURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publicBase(tt.cfg); got != tt.want {
				t.Errorf("publicBase: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	c := &Client{publicURL: "https://cdn.example.com", prefix: "builds"}
	if got, want := c.ObjectURL("a1b2.ipa"), "https://cdn.example.com/builds/a1b2.ipa"; got != want {
		t.Errorf("ObjectURL: got %q, want %q", got, want)
	}

	c.prefix = ""
	if got, want := c.ObjectURL("a1b2.ipa"), "https://cdn.example.com/a1b2.ipa"; got != want {
		t.Errorf("ObjectURL without prefix: got %q, want %q", got, want)
	}
}
