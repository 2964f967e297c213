package sheet

import (
	"bytes"
	"testing"
	"time"

	"postledger/ledger"
)

func TestEncodeDecodeKeepsOrderAndFields(t *testing.T) {
	added := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local)
	in := []ledger.Record{
		{Number: 1, Link: "https://t.me/chan/100", Status: "Вышли первыми", AddedAt: added},
		{Number: 2, Link: "https://t.me/news/55", Status: "", AddedAt: added.Add(time.Minute)},
		{Number: 3, Link: "https://t.me/other/7", Status: "своя метка", AddedAt: added.Add(2 * time.Minute)},
	}

	f, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Number != in[i].Number || out[i].Link != in[i].Link || out[i].Status != in[i].Status {
			t.Fatalf("record %d = %+v, want %+v", i, out[i], in[i])
		}
		if !out[i].AddedAt.Equal(in[i].AddedAt) {
			t.Fatalf("record %d AddedAt = %v, want %v", i, out[i].AddedAt, in[i].AddedAt)
		}
	}
}

func TestEncodeEmptyLedgerHasHeaderOnly(t *testing.T) {
	f, err := Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no records, got %d", len(out))
	}
}
