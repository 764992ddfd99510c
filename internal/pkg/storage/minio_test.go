package storage

import (
	"net/url"
	"testing"
)

func TestObjectURL(t *testing.T) {
	cases := []struct {
		endpoint string
		bucket   string
		key      string
		want     string
	}{
		{
			endpoint: "https://minio.internal:9000",
			bucket:   "supporting-documents",
			key:      "evidence/7/abc.pdf",
			want:     "https://minio.internal:9000/supporting-documents/evidence/7/abc.pdf",
		},
		{
			endpoint: "http://localhost:9000",
			bucket:   "supporting-documents",
			key:      "evidence/1/x.xlsx",
			want:     "http://localhost:9000/supporting-documents/evidence/1/x.xlsx",
		},
	}

	for _, tc := range cases {
		endpoint, err := url.Parse(tc.endpoint)
		if err != nil {
			t.Fatalf("parse endpoint error: %v", err)
		}
		if got := objectURL(endpoint, tc.bucket, tc.key); got != tc.want {
			t.Errorf("objectURL(%s, %s, %s) = %q, want %q", tc.endpoint, tc.bucket, tc.key, got, tc.want)
		}
	}
}
