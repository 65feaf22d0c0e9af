package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseSentenceID(t *testing.T) {
	tests := []struct {
		name      string
		pathValue string
		wantID    int
		wantOK    bool
	}{
		{name: "valid", pathValue: "42", wantID: 42, wantOK: true},
		{name: "zero", pathValue: "0", wantOK: false},
		{name: "negative", pathValue: "-3", wantOK: false},
		{name: "not a number", pathValue: "abc", wantOK: false},
		{name: "empty", pathValue: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("id", tt.pathValue)

			id, ok := ParseSentenceID(req)

			if ok != tt.wantOK {
				t.Errorf("ParseSentenceID() ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("ParseSentenceID() id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestParseTokenIndex(t *testing.T) {
	tests := []struct {
		pathValue string
		wantIdx   int
		wantOK    bool
	}{
		{pathValue: "0", wantIdx: 0, wantOK: true},
		{pathValue: "7", wantIdx: 7, wantOK: true},
		{pathValue: "-1", wantOK: false},
		{pathValue: "x", wantOK: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		req.SetPathValue("idx", tt.pathValue)

		idx, ok := ParseTokenIndex(req)
		if ok != tt.wantOK || idx != tt.wantIdx {
			t.Errorf("ParseTokenIndex(%q) = (%d, %v), want (%d, %v)", tt.pathValue, idx, ok, tt.wantIdx, tt.wantOK)
		}
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sentences?page=3&bad=x&neg=-2", nil)

	if got := queryInt(req, "page", 1); got != 3 {
		t.Errorf("page = %d, want 3", got)
	}
	if got := queryInt(req, "bad", 1); got != 1 {
		t.Errorf("bad = %d, want default 1", got)
	}
	if got := queryInt(req, "neg", 1); got != 1 {
		t.Errorf("neg = %d, want default 1", got)
	}
	if got := queryInt(req, "missing", 5); got != 5 {
		t.Errorf("missing = %d, want default 5", got)
	}
}
