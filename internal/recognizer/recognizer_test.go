package recognizer

import (
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
		isErr  bool
	}{
		{http.StatusOK, 0, false},
		{http.StatusTooManyRequests, KindQuotaExceeded, true},
		{http.StatusUnprocessableEntity, KindAudioFormatRejected, true},
		{http.StatusBadRequest, KindUnsupportedLanguage, true},
		{http.StatusInternalServerError, KindTransientNetwork, true},
	}
	for _, c := range cases {
		kind, ok := classifyStatus(c.status)
		if ok != c.isErr {
			t.Fatalf("status %d: got isErr=%v want %v", c.status, ok, c.isErr)
		}
		if ok && kind != c.kind {
			t.Errorf("status %d: got kind %v want %v", c.status, kind, c.kind)
		}
	}
}

func TestErrorRetryable(t *testing.T) {
	if !(&Error{Kind: KindQuotaExceeded}).Retryable() {
		t.Error("QuotaExceeded should be retryable")
	}
	if !(&Error{Kind: KindTransientNetwork}).Retryable() {
		t.Error("TransientNetwork should be retryable")
	}
	if (&Error{Kind: KindAudioFormatRejected}).Retryable() {
		t.Error("AudioFormatRejected should not be retryable")
	}
	if (&Error{Kind: KindUnsupportedLanguage}).Retryable() {
		t.Error("UnsupportedLanguage should not be retryable")
	}
}

func TestToHits(t *testing.T) {
	wire := []recognizerHitWire{{Word: "hi", Start: 0, End: 0.3, Confidence: 0.9}}
	hits := toHits(wire)
	if len(hits) != 1 || hits[0].Word != "hi" || hits[0].End != 0.3 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestClassifyPollError(t *testing.T) {
	if err := classifyPollError("Quota exceeded for project"); err.(*Error).Kind != KindQuotaExceeded {
		t.Errorf("expected QuotaExceeded")
	}
	if err := classifyPollError("unsupported Language code"); err.(*Error).Kind != KindUnsupportedLanguage {
		t.Errorf("expected UnsupportedLanguage")
	}
	if err := classifyPollError("bad audio format"); err.(*Error).Kind != KindAudioFormatRejected {
		t.Errorf("expected AudioFormatRejected")
	}
	if err := classifyPollError("connection reset"); err.(*Error).Kind != KindTransientNetwork {
		t.Errorf("expected TransientNetwork")
	}
}
