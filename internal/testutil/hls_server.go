package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"
)

// HLSFixture serves a generated media playlist with its segments and,
// optionally, an AES-128 key, the way a CDN would.
type HLSFixture struct {
	Server *httptest.Server

	Segments         [][]byte // plaintext segment payloads, in playlist order
	Key              []byte   // nil for unencrypted fixtures
	ExplicitIV       []byte   // nil derives IVs from the media sequence
	MediaSequence    int64
	SegmentDelay     time.Duration // per-segment latency
	PlaylistDelay    time.Duration // latency before the playlist is served
	FailSegment      int           // index that 500s FailSegmentTimes times (-1 = never)
	FailSegmentTimes int

	SegmentRequests  atomic.Int64
	KeyRequests      atomic.Int64
	PlaylistRequests atomic.Int64

	failCount atomic.Int64
}

// NewHLSFixture builds numSegments random segments of segSize bytes each and
// starts a server for them. Pass a 16-byte key to serve AES-128 encrypted
// segments.
func NewHLSFixture(numSegments int, segSize int, key []byte, mediaSequence int64) *HLSFixture {
	f := &HLSFixture{
		Key:           key,
		MediaSequence: mediaSequence,
		FailSegment:   -1,
	}
	for i := 0; i < numSegments; i++ {
		seg := make([]byte, segSize)
		rand.Read(seg)
		f.Segments = append(f.Segments, seg)
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// PlaylistURL returns the media playlist URL.
func (f *HLSFixture) PlaylistURL() string { return f.Server.URL + "/media.m3u8" }

// Close shuts the fixture server down.
func (f *HLSFixture) Close() { f.Server.Close() }

// Plaintext returns the concatenated plaintext of all segments, which a
// correct download must reproduce byte for byte.
func (f *HLSFixture) Plaintext() []byte {
	var out []byte
	for _, seg := range f.Segments {
		out = append(out, seg...)
	}
	return out
}

func (f *HLSFixture) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "media.m3u8"):
		f.PlaylistRequests.Add(1)
		if f.PlaylistDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(f.PlaylistDelay):
			}
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, f.renderPlaylist())

	case strings.HasSuffix(path, "enc.key"):
		f.KeyRequests.Add(1)
		w.Write(f.Key)

	case strings.HasPrefix(path, "/seg"):
		var idx int
		fmt.Sscanf(path, "/seg%d.ts", &idx)
		if idx < 0 || idx >= len(f.Segments) {
			http.NotFound(w, r)
			return
		}
		f.SegmentRequests.Add(1)
		if f.SegmentDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(f.SegmentDelay):
			}
		}
		if idx == f.FailSegment && f.failCount.Add(1) <= int64(f.FailSegmentTimes) {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write(f.segmentBody(idx))

	default:
		http.NotFound(w, r)
	}
}

func (f *HLSFixture) renderPlaylist() string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", f.MediaSequence)
	if f.Key != nil {
		b.WriteString(`#EXT-X-KEY:METHOD=AES-128,URI="enc.key"`)
		if f.ExplicitIV != nil {
			fmt.Fprintf(&b, ",IV=0x%s", hex.EncodeToString(f.ExplicitIV))
		}
		b.WriteString("\n")
	}
	for i := range f.Segments {
		fmt.Fprintf(&b, "#EXTINF:6.0,\nseg%d.ts\n", i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// segmentBody returns segment idx as served: encrypted with PKCS7 padding
// when a key is configured, plaintext otherwise.
func (f *HLSFixture) segmentBody(idx int) []byte {
	plain := f.Segments[idx]
	if f.Key == nil {
		return plain
	}
	iv := f.ExplicitIV
	if iv == nil {
		iv = DeriveIV(f.MediaSequence, idx)
	}
	return EncryptAES128CBC(f.Key, iv, plain)
}

// DeriveIV computes the implicit HLS IV: big-endian (mediaSequence + index)
// in the low 8 bytes of a zero-filled 16-byte IV.
func DeriveIV(mediaSequence int64, index int) []byte {
	iv := make([]byte, 16)
	binary.BigEndian.PutUint64(iv[8:], uint64(mediaSequence+int64(index)))
	return iv
}

// EncryptAES128CBC encrypts plain with PKCS7 padding; test-side counterpart
// of the engine's segment decryption.
func EncryptAES128CBC(key, iv, plain []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}
