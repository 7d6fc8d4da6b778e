// Package s3 implements fs.Channel over S3-compatible object storage,
// adapted from this repository's original s3.go session/credentials
// wiring and synthetic-directory convention.
package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	vfscore "github.com/nautilusfs/vfscore/fs"
)

const (
	// defaultChunkSize is the multipart upload threshold used when
	// Config.ChunkSize is zero or negative, matching this backend's
	// original 5 MiB default.
	defaultChunkSize = 5 * 1024 * 1024
	// dirMarkerSuffix is appended to a key to denote a synthetic
	// directory: a zero-length object whose key ends in "/".
	dirMarkerSuffix = "/"
)

// Channel implements vfscore.Channel over one S3 session scoped to a
// single bucket. A Channel is built per pooled object by NewChannel and
// must not be shared across goroutines (spec §5).
type Channel struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	chunkSize int64
}

// Config carries everything needed to dial an S3-compatible endpoint,
// projected from an fs.Environment by the caller (vfs package wiring).
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool
	ChunkSize       int64
}

// NewChannel dials a fresh S3 session and returns a Channel bound to
// cfg.Bucket. This is the factory rclone's session.NewSession /
// credentials.NewStaticCredentials pair was adapted from.
func NewChannel(ctx context.Context, cfg Config) (vfscore.Channel, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, vfscore.Wrap(vfscore.KindIOFailure, cfg.Bucket, err)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	client := s3.New(sess)
	uploader := s3manager.NewUploaderWithClient(client, func(u *s3manager.Uploader) {
		u.PartSize = chunkSize
	})

	return &Channel{client: client, uploader: uploader, bucket: cfg.Bucket, chunkSize: chunkSize}, nil
}

func (c *Channel) key(path string) string {
	return strings.TrimPrefix(path, "/")
}

// StoreFile uploads src to path via the chunked multipart uploader,
// which transparently falls back to a single PutObject call below the
// configured chunk size threshold. The upload is hashed alongside with
// multipartMD5 so the returned ETag can be checked against the bytes
// this process actually sent, catching silent corruption in transit.
func (c *Channel) StoreFile(ctx context.Context, path string, src io.Reader, opts vfscore.OpenOptions) error {
	hasher := newMultipartMD5(int(c.chunkSize))
	out, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(path)),
		Body:   io.TeeReader(src, hasher),
	})
	if err != nil {
		return vfscore.Wrap(vfscore.KindIOFailure, path, err)
	}
	if verr := verifyETag(hasher, out.ETag); verr != nil {
		return vfscore.NewPath(vfscore.KindIOFailure, path, verr.Error())
	}
	return nil
}

// verifyETag compares a computed multipart hash against S3's returned
// ETag. A single-part upload's ETag is a plain MD5 hex digest; a
// multipart upload's is "hex-partCount". A nil or non-MD5-shaped ETag
// (e.g. one produced by server-side encryption) is not checked.
func verifyETag(hasher *multipartMD5, etag *string) error {
	if etag == nil {
		return nil
	}
	raw := strings.Trim(*etag, `"`)
	hashPart, partCountPart, multipart := strings.Cut(raw, "-")
	if len(hashPart) != 32 {
		return nil // not an MD5-shaped ETag (e.g. SSE-KMS); nothing to compare
	}
	if multipart && partCountPart != strconv.Itoa(hasher.partsCount()) {
		return fmt.Errorf("upload verification failed: part count mismatch (etag %s, computed %d parts)", raw, hasher.partsCount())
	}
	want := hex.EncodeToString(hasher.Sum(nil))
	if hashPart != want {
		return fmt.Errorf("upload verification failed: etag %s does not match computed hash %s", raw, want)
	}
	return nil
}

// NewInputStream opens path for reading via GetObject.
func (c *Channel) NewInputStream(ctx context.Context, path string, opts vfscore.OpenOptions) (io.ReadCloser, error) {
	out, err := c.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(path)),
	})
	if err != nil {
		return nil, translateAWSErr(path, err)
	}
	return out.Body, nil
}

// outputPipe buffers writes in memory and uploads them on Close; S3
// has no append-in-place primitive, so a write stream must accumulate
// the full body before it can call StoreFile.
type outputPipe struct {
	ch   *Channel
	ctx  context.Context
	path string
	buf  bytes.Buffer
}

func (p *outputPipe) Write(b []byte) (int, error) { return p.buf.Write(b) }

func (p *outputPipe) Close() error {
	return p.ch.StoreFile(p.ctx, p.path, &p.buf, vfscore.OpenOptions{})
}

// NewOutputStream returns a write stream that uploads its accumulated
// body to path on Close (spec §4.3).
func (c *Channel) NewOutputStream(ctx context.Context, path string, opts vfscore.OpenOptions) (io.WriteCloser, error) {
	if opts.Append {
		return nil, vfscore.New(vfscore.KindUnsupportedOperation, "S3 objects cannot be opened for append")
	}
	return &outputPipe{ch: c, ctx: ctx, path: path}, nil
}

// Rename copies the object to target and deletes source; S3 has no
// native rename.
func (c *Channel) Rename(ctx context.Context, source, target string) error {
	_, err := c.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(c.bucket + "/" + c.key(source)),
		Key:        aws.String(c.key(target)),
	})
	if err != nil {
		return translateAWSErr(source, err)
	}
	return c.Delete(ctx, source, false)
}

// Mkdir creates a zero-length, "/"-suffixed directory marker object,
// this backend's synthetic-directory convention.
func (c *Channel) Mkdir(ctx context.Context, path string) error {
	key := strings.TrimSuffix(c.key(path), dirMarkerSuffix) + dirMarkerSuffix
	_, err := c.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return vfscore.Wrap(vfscore.KindIOFailure, path, err)
	}
	return nil
}

// Chown is not supported: S3 object ACLs do not model a POSIX owner
// principal this module's attribute table can round-trip.
func (c *Channel) Chown(ctx context.Context, path string, owner string) error {
	return vfscore.NewPath(vfscore.KindUnsupportedOperation, path, "S3 does not support chown")
}

// Chmod is not supported for the same reason as Chown.
func (c *Channel) Chmod(ctx context.Context, path string, perms vfscore.PermissionSet) error {
	return vfscore.NewPath(vfscore.KindUnsupportedOperation, path, "S3 does not support chmod")
}

// Delete removes path. For a directory it recursively deletes every
// key under the prefix (including the directory marker itself).
func (c *Channel) Delete(ctx context.Context, path string, isDirectory bool) error {
	if !isDirectory {
		_, err := c.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.key(path)),
		})
		if err != nil {
			return translateAWSErr(path, err)
		}
		return nil
	}

	prefix := strings.TrimSuffix(c.key(path), dirMarkerSuffix) + dirMarkerSuffix
	var toDelete []*s3.ObjectIdentifier
	err := c.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			toDelete = append(toDelete, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return translateAWSErr(path, err)
	}
	for _, batch := range chunkIdentifiers(toDelete, 1000) {
		_, err := c.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &s3.Delete{Objects: batch},
		})
		if err != nil {
			return translateAWSErr(path, err)
		}
	}
	return nil
}

func chunkIdentifiers(ids []*s3.ObjectIdentifier, size int) [][]*s3.ObjectIdentifier {
	var out [][]*s3.ObjectIdentifier
	for len(ids) > 0 {
		n := size
		if n > len(ids) {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

// ListFiles lists the immediate children of path by delimiting on "/".
func (c *Channel) ListFiles(ctx context.Context, path string) ([]vfscore.DirEntry, error) {
	prefix := strings.TrimSuffix(c.key(path), dirMarkerSuffix)
	if prefix != "" {
		prefix += dirMarkerSuffix
	}

	var entries []vfscore.DirEntry
	err := c.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(dirMarkerSuffix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.StringValue(cp.Prefix), prefix), dirMarkerSuffix)
			if name == "" {
				continue
			}
			entries = append(entries, vfscore.DirEntry{Name: name, Attrs: vfscore.Attributes{IsDirectory: true}})
		}
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" || strings.HasSuffix(key, dirMarkerSuffix) {
				continue // the directory's own marker object, not a child
			}
			mod := aws.TimeValue(obj.LastModified)
			entries = append(entries, vfscore.DirEntry{
				Name: name,
				Attrs: vfscore.Attributes{
					IsRegularFile: true,
					Size:          aws.Int64Value(obj.Size),
					LastModified:  &mod,
				},
			})
		}
		return true
	})
	if err != nil {
		return nil, translateAWSErr(path, err)
	}
	return entries, nil
}

// ReadAttributes issues a HeadObject, classifying the result by the
// directory-marker convention: a "/"-suffixed key (or the bucket root)
// is a directory, everything else a regular file (mutually exclusive,
// per the §9 Open Question decision). The object's length is not
// consulted.
func (c *Channel) ReadAttributes(ctx context.Context, path string, followLinks bool) (vfscore.Attributes, error) {
	key := c.key(path)
	isDirectory := strings.HasSuffix(key, dirMarkerSuffix) || key == ""
	lookupKey := key
	if isDirectory && !strings.HasSuffix(lookupKey, dirMarkerSuffix) {
		lookupKey += dirMarkerSuffix
	}

	out, err := c.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(lookupKey),
	})
	if err != nil {
		return vfscore.Attributes{}, translateAWSErr(path, err)
	}

	mod := aws.TimeValue(out.LastModified)
	return vfscore.Attributes{
		IsDirectory:   isDirectory,
		IsRegularFile: !isDirectory,
		Size:          aws.Int64Value(out.ContentLength),
		LastModified:  &mod,
		Permissions: vfscore.NewPermissionSet(
			vfscore.PermOwnerRead, vfscore.PermOwnerWrite,
			vfscore.PermGroupRead, vfscore.PermOthersRead,
		),
	}, nil
}

// SetModTime stores the modification time as object user metadata via
// a copy-in-place; S3 has no direct mtime-set API.
func (c *Channel) SetModTime(ctx context.Context, path string, millis int64) error {
	key := c.key(path)
	_, err := c.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(c.bucket),
		CopySource:        aws.String(c.bucket + "/" + key),
		Key:               aws.String(key),
		Metadata:          map[string]*string{"mtime": aws.String(strconv.FormatInt(millis, 10))},
		MetadataDirective: aws.String(s3.MetadataDirectiveReplace),
	})
	if err != nil {
		return translateAWSErr(path, err)
	}
	return nil
}

// SetAccessTime is not supported: S3 has no access-time concept.
func (c *Channel) SetAccessTime(ctx context.Context, path string, millis int64) error {
	return vfscore.NewPath(vfscore.KindUnsupportedOperation, path, "S3 does not track access time")
}

// SetCreationTime is not supported: S3 reports only LastModified.
func (c *Channel) SetCreationTime(ctx context.Context, path string, millis int64) error {
	return vfscore.NewPath(vfscore.KindUnsupportedOperation, path, "S3 does not support setting creation time")
}

// Exists reports whether path can be head-read successfully, per the
// §9 Open Question: any failure collapses to false.
func (c *Channel) Exists(ctx context.Context, path string) bool {
	_, err := c.ReadAttributes(ctx, path, false)
	return err == nil
}

// Pwd is not supported: object stores have no working directory.
func (c *Channel) Pwd(ctx context.Context) (string, error) {
	return "", vfscore.New(vfscore.KindUnsupportedOperation, "S3 has no working directory")
}

// ReadSymbolicLink is not supported: S3 has no symbolic link concept.
func (c *Channel) ReadSymbolicLink(ctx context.Context, path string) (string, error) {
	return "", vfscore.NewPath(vfscore.KindUnsupportedOperation, path, "S3 does not support symbolic links")
}

// Close is a no-op: the aws-sdk-go client holds no session state that
// needs explicit teardown beyond what the pool already manages.
func (c *Channel) Close() error { return nil }

func translateAWSErr(path string, err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return vfscore.NewPath(vfscore.KindNotFound, path, "no such key")
		case "Forbidden", "AccessDenied":
			return vfscore.NewPath(vfscore.KindAccessDenied, path, aerr.Message())
		}
		if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == 404 {
			return vfscore.NewPath(vfscore.KindNotFound, path, "no such key")
		}
	}
	return vfscore.Wrap(vfscore.KindIOFailure, path, err)
}
