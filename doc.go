// Package s3io streams data of unknown length into S3 and S3-compatible
// object stores with bounded memory.
//
// A Writer holds two buffers. While the caller fills one, the other is
// uploaded as a multipart part by a single background worker. Objects that
// never outgrow the first buffer are written with one PutObject instead, so
// small objects cost a single request.
//
// The store is reached through objectstore.Store, with implementations for
// the AWS SDK (objectstore/s3store), minio-go (objectstore/miniostore) and
// memory (objectstore/memstore).
//
// Example usage:
//
//	client, err := s3io.New(ctx, s3io.WithRegion("eu-west-1"))
//	if err != nil {
//	    return err
//	}
//
//	w, err := client.NewWriter(ctx, "my-bucket", "exports/data.csv")
//	if err != nil {
//	    return err
//	}
//	if _, err := io.Copy(w, rows); err != nil {
//	    _ = w.Abort()
//	    return err
//	}
//	if err := w.Close(); err != nil {
//	    return err
//	}
//	fmt.Println(w.Result().ETag)
package s3io
