// Package vecrec recommends stored items similar to a given item by
// comparing fixed-dimension feature vectors.
//
// A DB keeps every vector in an append-only feature store and indexes it
// twice: an exact k-d tree (Euclidean distance) and an approximate HNSW graph
// (cosine distance). Recommend queries both and returns two independent,
// scored lists so the indices can be compared side by side.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vecrec.Open(ctx, vecrec.WithLocalDir("./data"))
//	defer db.Close()
//
//	res, _ := db.Ingest(ctx, []featurestore.Item{
//	    {Key: "track-1", Vector: v1, Metadata: featurestore.Metadata{"title": "Intro"}},
//	    {Key: "track-2", Vector: v2},
//	})
//
//	recs, _ := db.Recommend(ctx, res.IDs[0], 5)
//	for _, e := range recs.Exact {
//	    fmt.Println(e.Key, e.ScoreString())
//	}
//
// # Scores
//
// Each list is scored on its own: score = (1 - distance/max) * 100 where max
// is the largest distance in that list. The farthest entry therefore always
// scores 0%.
//
// # Persistence
//
// The feature store and both indices are written to a blobstore.BlobStore
// after every ingest or rebuild. Open loads them back; an index whose
// artifact is missing or fails validation is rebuilt from the feature store.
// Local directories, S3 (blobstore/s3) and MinIO (blobstore/minio) are
// supported.
//
// # Degradation
//
// The two queries of Recommend are independent. If one index fails, the
// other list is still returned and the failure is reported in
// Recommendations.ExactErr or Recommendations.ApproximateErr.
package vecrec
