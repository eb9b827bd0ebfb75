package hls

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/types"
)

const (
	segmentAttempts    = 3
	segmentBackoffBase = 500 * time.Millisecond
)

// playlistTimeout bounds manifest and key fetches; swapped in tests.
var playlistTimeout = types.PlaylistTimeout

// LoadPlaylist fetches rawurl and returns its media playlist. Master
// playlists are resolved transparently: the preferred variant is selected
// and its media playlist fetched.
func LoadPlaylist(ctx context.Context, client *http.Client, rawurl string, headers map[string]string) (*MediaPlaylist, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, playlistTimeout)
	defer cancel()

	body, base, err := fetchText(ctx, client, rawurl, headers)
	if err != nil {
		return nil, nil, err
	}

	if IsMasterPlaylist(body) {
		variants, err := ParseMasterPlaylist(base, body)
		if err != nil {
			return nil, nil, err
		}
		chosen, err := SelectVariant(variants)
		if err != nil {
			return nil, nil, err
		}
		logx.Debug("selected variant %dx%d @ %d bps", chosen.Width, chosen.Height, chosen.Bandwidth)
		body, base, err = fetchText(ctx, client, chosen.URL, headers)
		if err != nil {
			return nil, nil, err
		}
	}

	pl, err := ParseMediaPlaylist(base, body)
	if err != nil {
		return nil, nil, err
	}
	return pl, base, nil
}

// Download fetches the stream at playlistURL into dest. Segments are fetched
// concurrently, decrypted when the playlist is AES-128 encrypted, and written
// to dest+".part" in playlist order. On success the file is renamed and a
// completion manifest recorded, which makes repeated calls for the same dest
// no-ops. Returns bytes written.
func Download(ctx context.Context, client *http.Client, playlistURL, dest string, headers map[string]string, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (int64, error) {
	if IsComplete(dest) {
		info, err := os.Stat(dest)
		if err != nil {
			return 0, err
		}
		logx.Debug("skipping completed download: %s", dest)
		if onProgress != nil {
			onProgress(100, info.Size(), info.Size())
		}
		return info.Size(), nil
	}

	pl, _, err := LoadPlaylist(ctx, client, playlistURL, headers)
	if err != nil {
		return 0, err
	}

	var key []byte
	if pl.Key != nil {
		keyCtx, cancel := context.WithTimeout(ctx, playlistTimeout)
		key, err = fetchKey(keyCtx, client, pl.Key.URI, headers)
		cancel()
		if err != nil {
			return 0, err
		}
	}

	partPath := dest + types.IncompleteSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create part file: %w", err)
	}

	written, err := downloadSegments(ctx, client, pl, key, headers, cfg, out, onProgress)
	if err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, fmt.Errorf("sync error: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("close error: %w", err)
	}
	if err := os.Rename(partPath, dest); err != nil {
		return 0, fmt.Errorf("failed to finalize file: %w", err)
	}

	if err := WriteManifest(dest, written, len(pl.Segments)); err != nil {
		logx.Warn("failed to write completion manifest for %s: %v", dest, err)
	}
	if onProgress != nil {
		onProgress(100, written, written)
	}
	return written, nil
}

// downloadSegments runs the worker pool. Workers hand finished segments to a
// single writer goroutine over per-index channels so bytes land on disk in
// playlist order regardless of completion order.
func downloadSegments(ctx context.Context, client *http.Client, pl *MediaPlaylist, key []byte, headers map[string]string, cfg *types.RuntimeConfig, out io.Writer, onProgress types.ProgressFunc) (int64, error) {
	total := len(pl.Segments)
	ready := make([]chan []byte, total)
	for i := range ready {
		ready[i] = make(chan []byte, 1)
	}

	// An early writer exit (write error) must also stop in-flight fetches.
	ctx, cancelFetches := context.WithCancel(ctx)
	defer cancelFetches()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.GetConcurrentFragments())

	// Enqueueing blocks once the limit is reached, so spawn from a helper
	// goroutine and hand the group result to the writer over a channel.
	fetchDone := make(chan error, 1)
	go func() {
		for _, seg := range pl.Segments {
			seg := seg
			g.Go(func() error {
				data, err := fetchSegment(gctx, client, seg, headers)
				if err != nil {
					return err
				}
				if key != nil {
					iv := pl.Key.IV
					if iv == nil {
						iv = deriveIV(pl.MediaSequence, seg.Index)
					}
					data, err = decryptAES128(key, iv, data)
					if err != nil {
						return fmt.Errorf("segment %d: %w", seg.Index, err)
					}
				}
				// Buffered, one send per index: never blocks.
				ready[seg.Index] <- data
				return nil
			})
		}
		fetchDone <- g.Wait()
	}()

	var written int64
	fetchesDone := false
	for i := 0; i < total; i++ {
		var data []byte
		if fetchesDone {
			// Every fetch already succeeded, so the remaining segments are
			// sitting in their buffers.
			data = <-ready[i]
		} else {
			select {
			case data = <-ready[i]:
			case err := <-fetchDone:
				if err != nil {
					if ctx.Err() != nil {
						return written, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
					}
					return written, err
				}
				fetchesDone = true
				data = <-ready[i]
			}
		}

		n, err := out.Write(data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write error: %w", err)
		}
		if onProgress != nil {
			percent := float64(i+1) / float64(total) * 100
			if percent >= 100 {
				percent = 99 // terminal 100 is reported after rename
			}
			onProgress(percent, written, 0)
		}
	}

	if !fetchesDone {
		if err := <-fetchDone; err != nil {
			if ctx.Err() != nil {
				return written, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
			}
			return written, err
		}
	}
	if ctx.Err() != nil {
		return written, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
	}
	return written, nil
}

// fetchSegment downloads one segment, retrying transient failures with
// exponential backoff. Fatal HTTP statuses abort immediately.
func fetchSegment(ctx context.Context, client *http.Client, seg Segment, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < segmentAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(segmentDelay(errs.KindOf(lastErr), attempt)):
			}
		}

		data, err := fetchBytes(ctx, client, seg.URL, headers)
		if err == nil {
			return data, nil
		}
		if errs.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("segment %d failed after %d attempts: %w", seg.Index, segmentAttempts, lastErr)
}

// segmentDelay computes the wait before retry attempt k (1-based).
// Rate-limited responses back off 10*2^(k-1) seconds; everything else
// retryable doubles from the base.
func segmentDelay(kind errs.Kind, attempt int) time.Duration {
	if kind == errs.KindRateLimited {
		return time.Duration(10<<(attempt-1)) * time.Second
	}
	return segmentBackoffBase << (attempt - 1)
}

func fetchKey(ctx context.Context, client *http.Client, keyURL string, headers map[string]string) ([]byte, error) {
	key, err := fetchBytes(ctx, client, keyURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch decryption key: %w", err)
	}
	if len(key) != 16 {
		return nil, errs.New(errs.KindPlaylistParse,
			fmt.Sprintf("decryption key has %d bytes, want 16", len(key)))
	}
	return key, nil
}

func fetchBytes(ctx context.Context, client *http.Client, rawurl string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatalHTTP, "invalid request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", types.DefaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}
		return nil, errs.Wrap(errs.KindRetryable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, errs.FromStatus(resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetryable, "read error", err)
	}
	return data, nil
}

func fetchText(ctx context.Context, client *http.Client, rawurl string, headers map[string]string) (string, *url.URL, error) {
	base, err := url.Parse(rawurl)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindFatalHTTP, "invalid playlist URL", err)
	}
	data, err := fetchBytes(ctx, client, rawurl, headers)
	if err != nil {
		return "", nil, err
	}
	return string(data), base, nil
}

// deriveIV computes the implicit IV for a segment: big-endian media sequence
// number in the low 8 bytes of a zeroed 16-byte block.
func deriveIV(mediaSequence int64, index int) []byte {
	iv := make([]byte, 16)
	seq := uint64(mediaSequence + int64(index))
	for i := 15; i >= 8; i-- {
		iv[i] = byte(seq)
		seq >>= 8
	}
	return iv
}

// decryptAES128 decrypts one CBC-encrypted segment and strips PKCS7 padding.
func decryptAES128(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(plain) {
		return nil, fmt.Errorf("invalid PKCS7 padding")
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid PKCS7 padding")
		}
	}
	return plain[:len(plain)-pad], nil
}
