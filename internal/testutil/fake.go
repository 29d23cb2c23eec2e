// In-memory bucket fake for hermetic engine tests.

package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// FakeBucket is an in-memory implementation of the s3api.S3API surface
// with real listing semantics: sorted keys, prefix filtering, delimiter
// grouping, and continuation-token pagination. It is safe for
// concurrent use.
type FakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]map[int32][]byte
	nextID  int
}

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewFakeBucket creates an empty FakeBucket.
func NewFakeBucket() *FakeBucket {
	return &FakeBucket{
		objects: make(map[string]fakeObject),
		uploads: make(map[string]map[int32][]byte),
	}
}

// Seed stores an object directly, bypassing the API surface.
func (f *FakeBucket) Seed(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, modified: time.Now()}
}

// Keys returns every stored key in sorted order.
func (f *FakeBucket) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a stored object's bytes and whether it exists.
func (f *FakeBucket) Get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj.data, ok
}

// PutObject stores the object.
func (f *FakeBucket) PutObject(
	_ context.Context,
	params *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	var data []byte
	if params.Body != nil {
		var err error
		data, err = io.ReadAll(params.Body)
		if err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(params.ContentType),
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{ETag: aws.String(etagFor(data))}, nil
}

// GetObject returns the object or NoSuchKey.
func (f *FakeBucket) GetObject(
	_ context.Context,
	params *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(etagFor(obj.data)),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// HeadObject returns metadata or NotFound.
func (f *FakeBucket) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(etagFor(obj.data)),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// HeadBucket always succeeds.
func (f *FakeBucket) HeadBucket(
	_ context.Context,
	_ *s3.HeadBucketInput,
	_ ...func(*s3.Options),
) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

// ListObjectsV2 lists sorted keys with prefix, delimiter, and
// continuation-token semantics.
func (f *FakeBucket) ListObjectsV2(
	_ context.Context,
	params *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)
	after := aws.ToString(params.ContinuationToken)

	maxKeys := int32(1000)
	if params.MaxKeys != nil && *params.MaxKeys > 0 && *params.MaxKeys < maxKeys {
		maxKeys = *params.MaxKeys
	}

	f.mu.Lock()
	all := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			all = append(all, k)
		}
	}
	sizes := make(map[string]int64, len(all))
	mods := make(map[string]time.Time, len(all))
	for _, k := range all {
		sizes[k] = int64(len(f.objects[k].data))
		mods[k] = f.objects[k].modified
	}
	f.mu.Unlock()

	sort.Strings(all)

	output := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seenPrefixes := make(map[string]struct{})
	var emitted int32

	for _, key := range all {
		// ContinuationToken is the last emitted entry (key or common
		// prefix); only entries strictly after it appear. Any key with
		// the delimiter after the prefix rolls up into a common prefix,
		// folder markers included, like the real store.
		entryKey := key
		grouped := false
		if delimiter != "" {
			rest := strings.TrimPrefix(key, prefix)
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				entryKey = prefix + rest[:idx+len(delimiter)]
				grouped = true
			}
		}
		if after != "" && entryKey <= after {
			continue
		}

		if emitted >= maxKeys {
			output.IsTruncated = aws.Bool(true)
			break
		}

		if grouped {
			if _, dup := seenPrefixes[entryKey]; dup {
				continue
			}
			seenPrefixes[entryKey] = struct{}{}
			output.CommonPrefixes = append(output.CommonPrefixes, types.CommonPrefix{
				Prefix: aws.String(entryKey),
			})
		} else {
			output.Contents = append(output.Contents, types.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(sizes[key]),
				LastModified: aws.Time(mods[key]),
				ETag:         aws.String(fmt.Sprintf("%q", key)),
			})
		}
		emitted++
		output.NextContinuationToken = aws.String(entryKey)
	}

	if !aws.ToBool(output.IsTruncated) {
		output.NextContinuationToken = nil
	}
	return output, nil
}

// CopyObject copies within the fake bucket.
func (f *FakeBucket) CopyObject(
	_ context.Context,
	params *s3.CopyObjectInput,
	_ ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	source, err := url.QueryUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, err
	}
	// CopySource is "bucket/key"; the fake holds a single bucket.
	if idx := strings.Index(source, "/"); idx >= 0 {
		source = source[idx+1:]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[source]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	dst := fakeObject{
		data:        append([]byte(nil), obj.data...),
		contentType: obj.contentType,
		modified:    time.Now(),
	}
	f.objects[aws.ToString(params.Key)] = dst
	return &s3.CopyObjectOutput{
		CopyObjectResult: &types.CopyObjectResult{ETag: aws.String(etagFor(dst.data))},
	}, nil
}

// DeleteObject removes one object. Missing keys succeed, like the real
// store.
func (f *FakeBucket) DeleteObject(
	_ context.Context,
	params *s3.DeleteObjectInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// DeleteObjects removes a batch, reporting every key as deleted.
func (f *FakeBucket) DeleteObjects(
	_ context.Context,
	params *s3.DeleteObjectsInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	output := &s3.DeleteObjectsOutput{}
	for _, ident := range params.Delete.Objects {
		key := aws.ToString(ident.Key)
		delete(f.objects, key)
		output.Deleted = append(output.Deleted, types.DeletedObject{Key: aws.String(key)})
	}
	return output, nil
}

// CreateMultipartUpload starts a multipart upload.
func (f *FakeBucket) CreateMultipartUpload(
	_ context.Context,
	params *s3.CreateMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("upload-%d-%s", f.nextID, aws.ToString(params.Key))
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

// UploadPart stores one part.
func (f *FakeBucket) UploadPart(
	_ context.Context,
	params *s3.UploadPartInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	pn := aws.ToInt32(params.PartNumber)
	parts[pn] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"part-%d\"", pn))}, nil
}

// CompleteMultipartUpload assembles stored parts into the object.
func (f *FakeBucket) CompleteMultipartUpload(
	_ context.Context,
	params *s3.CompleteMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.UploadId)
	parts, ok := f.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var data []byte
	for _, part := range params.MultipartUpload.Parts {
		chunk, ok := parts[aws.ToInt32(part.PartNumber)]
		if !ok {
			return nil, &types.InvalidObjectState{}
		}
		data = append(data, chunk...)
	}

	f.objects[aws.ToString(params.Key)] = fakeObject{data: data, modified: time.Now()}
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String(etagFor(data))}, nil
}

// AbortMultipartUpload discards stored parts.
func (f *FakeBucket) AbortMultipartUpload(
	_ context.Context,
	params *s3.AbortMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func etagFor(data []byte) string {
	return fmt.Sprintf("\"etag-%d\"", len(data))
}
