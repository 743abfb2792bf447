// Package cluster holds election message values exchanged between cluster
// members. The consensus state machine itself lives outside the kernel;
// this package only constructs the values it sends.
package cluster

// Vote message type discriminators
const (
	MessageTypeVoteRequest    = "vote_request"
	MessageTypePreVoteRequest = "pre_vote_request"
)

// VoteRequest asks a member to vote for a candidate in an election term
type VoteRequest struct {
	MessageType string `json:"message_type"`
	CandidateID string `json:"candidate_id"`
	Term        uint64 `json:"term"`
	LastLSN     uint64 `json:"last_lsn"`
	Epoch       uint64 `json:"epoch"`
	Priority    int    `json:"priority"`
}

// PreVoteRequest probes electability without disturbing the current term
type PreVoteRequest struct {
	MessageType string `json:"message_type"`
	CandidateID string `json:"candidate_id"`
	Term        uint64 `json:"term"`
	LastLSN     uint64 `json:"last_lsn"`
	Epoch       uint64 `json:"epoch"`
	Priority    int    `json:"priority"`
}

// VoteResponse answers a vote or pre-vote request
type VoteResponse struct {
	MessageType string `json:"message_type"`
	VoterID     string `json:"voter_id"`
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
	Reason      string `json:"reason,omitempty"`
}

// voteConstructor builds one concrete request kind from the shared fields
type voteConstructor[T any] func(candidateID string, term, lastLSN, epoch uint64, priority int) T

// VoteRequestBuilder assembles vote-shaped requests field by field. The
// same builder shape serves every request kind through its constructor.
type VoteRequestBuilder[T any] struct {
	candidateID string
	term        uint64
	lastLSN     uint64
	epoch       uint64
	priority    int

	construct voteConstructor[T]
}

// NewVoteRequestBuilder creates a builder producing VoteRequests
func NewVoteRequestBuilder() *VoteRequestBuilder[VoteRequest] {
	return &VoteRequestBuilder[VoteRequest]{
		construct: func(candidateID string, term, lastLSN, epoch uint64, priority int) VoteRequest {
			return VoteRequest{
				MessageType: MessageTypeVoteRequest,
				CandidateID: candidateID,
				Term:        term,
				LastLSN:     lastLSN,
				Epoch:       epoch,
				Priority:    priority,
			}
		},
	}
}

// NewPreVoteRequestBuilder creates a builder producing PreVoteRequests
func NewPreVoteRequestBuilder() *VoteRequestBuilder[PreVoteRequest] {
	return &VoteRequestBuilder[PreVoteRequest]{
		construct: func(candidateID string, term, lastLSN, epoch uint64, priority int) PreVoteRequest {
			return PreVoteRequest{
				MessageType: MessageTypePreVoteRequest,
				CandidateID: candidateID,
				Term:        term,
				LastLSN:     lastLSN,
				Epoch:       epoch,
				Priority:    priority,
			}
		},
	}
}

// Candidate sets the candidate member id
func (b *VoteRequestBuilder[T]) Candidate(id string) *VoteRequestBuilder[T] {
	b.candidateID = id
	return b
}

// Term sets the election term
func (b *VoteRequestBuilder[T]) Term(term uint64) *VoteRequestBuilder[T] {
	b.term = term
	return b
}

// LastLSN sets the candidate's last applied log sequence number
func (b *VoteRequestBuilder[T]) LastLSN(lsn uint64) *VoteRequestBuilder[T] {
	b.lastLSN = lsn
	return b
}

// Epoch sets the cluster configuration epoch
func (b *VoteRequestBuilder[T]) Epoch(epoch uint64) *VoteRequestBuilder[T] {
	b.epoch = epoch
	return b
}

// Priority sets the candidate's election priority
func (b *VoteRequestBuilder[T]) Priority(priority int) *VoteRequestBuilder[T] {
	b.priority = priority
	return b
}

// Build constructs the request value
func (b *VoteRequestBuilder[T]) Build() T {
	return b.construct(b.candidateID, b.term, b.lastLSN, b.epoch, b.priority)
}
