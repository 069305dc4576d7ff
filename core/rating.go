package core

// Rating is the immutable score a client left for a finalized job.
type Rating struct {
	Agent     Address `json:"agent" cbor:"agent"`
	Rater     Address `json:"rater" cbor:"rater"`
	Job       Address `json:"job" cbor:"job"`
	Score     uint8   `json:"score" cbor:"score"`
	CreatedAt int64   `json:"created_at" cbor:"created_at"`
}
