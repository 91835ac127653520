package firebase

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/auth"
	"github.com/shopspring/decimal"

	"salesboard/internal/domain"
)

func TestEncodeFields(t *testing.T) {
	m := encodeFields(domain.RecordFields{
		DMCount:    3,
		AdSpend:    decimal.RequireFromString("12.5"),
		SalesCount: 1,
		Revenue:    decimal.RequireFromString("-4.25"),
	})
	if m[fieldDMCount] != int64(3) || m[fieldSalesCount] != int64(1) {
		t.Errorf("counts = %v %v", m[fieldDMCount], m[fieldSalesCount])
	}
	if m[fieldAdSpend] != 12.5 || m[fieldRevenue] != -4.25 {
		t.Errorf("amounts = %v %v", m[fieldAdSpend], m[fieldRevenue])
	}
	if m[fieldCreatedAt] != firestore.ServerTimestamp {
		t.Error("createdAt should be the server timestamp sentinel")
	}
}

func TestDecodeRecord(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := decodeRecord("doc1", map[string]any{
		fieldDMCount:    int64(7),
		fieldAdSpend:    0.1,
		fieldSalesCount: 2.9,
		fieldRevenue:    "19.99",
		fieldCreatedAt:  ts,
	})
	if r.ID != "doc1" || r.DMCount != 7 || r.SalesCount != 2 {
		t.Errorf("unexpected record %+v", r)
	}
	if !r.AdSpend.Equal(decimal.RequireFromString("0.1")) || !r.Revenue.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("amounts = %s %s", r.AdSpend, r.Revenue)
	}
	if r.CreatedAt == nil || !r.CreatedAt.Equal(ts) {
		t.Errorf("createdAt = %v", r.CreatedAt)
	}
}

func TestDecodeRecord_OutOfRange(t *testing.T) {
	r := decodeRecord("doc3", map[string]any{
		fieldDMCount:    1e300,
		fieldAdSpend:    "1e2000000000",
		fieldSalesCount: "9223372036854775808",
		fieldRevenue:    1e-300,
	})
	if r.DMCount != 0 || r.SalesCount != 0 || !r.AdSpend.IsZero() || !r.Revenue.IsZero() {
		t.Errorf("out-of-range fields should read as zero: %+v", r)
	}
}

func TestDecodeRecord_PendingAndMissing(t *testing.T) {
	r := decodeRecord("doc2", map[string]any{fieldDMCount: "bogus"})
	if !r.Pending() {
		t.Error("record without timestamp should be pending")
	}
	if r.DMCount != 0 || !r.AdSpend.IsZero() || !r.Revenue.IsZero() {
		t.Errorf("missing fields should read as zero: %+v", r)
	}
}

func TestIdentityFromToken(t *testing.T) {
	tok := &auth.Token{UID: "uid-1"}
	tok.Firebase.SignInProvider = "anonymous"
	id := identityFromToken(tok, "raw")
	if id.ID != "uid-1" || !id.Anonymous || id.Token != "raw" {
		t.Errorf("unexpected identity %+v", id)
	}

	tok.Firebase.SignInProvider = "password"
	if identityFromToken(tok, "raw").Anonymous {
		t.Error("password sign-in is not anonymous")
	}
}
