// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// Objects are written with a single PutObject (CRC32C checked) when small
// and through the multipart upload manager otherwise. S3 object writes are
// atomic, which is all the recommender needs: every artifact has a single
// writer.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "bucket", "recommender/")
package s3
