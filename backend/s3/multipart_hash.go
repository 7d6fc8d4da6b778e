package s3

import (
	"crypto/md5"
	"encoding"
	"hash"
)

// multipartMD5 reproduces the digest S3 reports as the ETag of a
// multipart upload: the concatenation of each part's MD5, re-hashed,
// with "-<partCount>" appended by the caller. A single-part upload's
// ETag is just the plain MD5 of the body, so this also has to behave
// like an ordinary hash.Hash when fewer than partSize bytes ever pass
// through Write.
//
// StoreFile tees every upload through one of these so a corrupted
// transfer is caught by comparing against the ETag S3 returns, rather
// than trusting a 200 response alone.
type multipartMD5 struct {
	partSize    int
	partWritten int  // bytes hashed into part so far
	partsDone   int  // parts flushed into combined
	part        hash.Hash
	combined    hash.Hash // lazily created on the first flushed part
}

func newMultipartMD5(partSize int) *multipartMD5 {
	return &multipartMD5{partSize: partSize, part: md5.New()}
}

// partsCount reports how many parts this upload would be split into,
// matching the "-<n>" suffix S3 appends to a multipart ETag.
func (h *multipartMD5) partsCount() int {
	if h.partWritten == 0 {
		return h.partsDone
	}
	return h.partsDone + 1
}

func (h *multipartMD5) combinedDigest() hash.Hash {
	if h.combined == nil {
		h.combined = md5.New()
	}
	return h.combined
}

// flushPart closes out the current part's digest into combined and
// starts a fresh part digest.
func (h *multipartMD5) flushPart() {
	h.combinedDigest().Write(h.part.Sum(nil))
	h.part = md5.New()
	h.partWritten = 0
	h.partsDone++
}

func (h *multipartMD5) Write(p []byte) (int, error) {
	if h.partSize <= 0 {
		return h.part.Write(p)
	}

	written := 0
	for len(p) > 0 {
		remaining := h.partSize - h.partWritten
		chunk := p
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		n, _ := h.part.Write(chunk)
		written += n
		h.partWritten += n
		p = p[n:]
		if h.partWritten == h.partSize {
			h.flushPart()
		}
	}
	return written, nil
}

// Sum returns the digest S3 would report for the bytes written so
// far: a plain MD5 if nothing has been flushed into combined yet,
// otherwise the MD5 of every flushed part's digest plus whatever part
// is still in progress.
func (h *multipartMD5) Sum(b []byte) []byte {
	switch {
	case h.partSize <= 0 || h.partsDone == 0:
		return h.part.Sum(b)
	case h.partWritten == 0:
		return h.combinedDigest().Sum(b)
	default:
		// Sum must not mutate state (more data may still arrive), so
		// clone combined via its Binary(Un)marshaler before folding
		// in the in-progress part.
		snapshot, _ := h.combinedDigest().(encoding.BinaryMarshaler).MarshalBinary()
		clone := md5.New()
		if err := clone.(encoding.BinaryUnmarshaler).UnmarshalBinary(snapshot); err != nil {
			panic("s3: unable to clone multipart digest: " + err.Error())
		}
		clone.Write(h.part.Sum(nil))
		return clone.Sum(b)
	}
}

func (h *multipartMD5) Reset() {
	h.part = md5.New()
	h.combined = nil
	h.partWritten = 0
	h.partsDone = 0
}

func (h *multipartMD5) Size() int      { return md5.Size }
func (h *multipartMD5) BlockSize() int { return md5.BlockSize }
