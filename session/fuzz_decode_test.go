package session

import "testing"

// FuzzDecode feeds arbitrary blobs to Decode. It must never panic, and anything it
// accepts must survive a re-encode.
func FuzzDecode(f *testing.F) {
	seed, _ := Encode(&Record{ID: "u.01J", UserID: "u"})
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Add([]byte{1, '{', '}'})
	f.Add([]byte{2, '{', '}'})

	f.Fuzz(func(t *testing.T, raw []byte) {
		rec, err := Decode(raw)
		if err != nil {
			return
		}
		blob, err := Encode(rec)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if _, err := Decode(blob); err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
	})
}
