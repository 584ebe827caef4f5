package job

type Candidate struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Company string `json:"company"`
}

func (c Candidate) Signature() string {
	return Signature(c.URL, c.Title, c.Company)
}

func (c Candidate) Update() DiscoveryUpdate {
	return DiscoveryUpdate{Title: c.Title, URL: c.URL, Company: c.Company}
}

func (c Candidate) normalized() [3]string {
	return [3]string{NormalizeField(c.URL), NormalizeField(c.Title), NormalizeField(c.Company)}
}

type DuplicateReason string

const (
	DuplicateKnown     DuplicateReason = "known"
	DuplicateInBatch   DuplicateReason = "in_batch"
	DuplicateCollision DuplicateReason = "collision"
)

type StampedCandidate struct {
	Candidate
	Signature string
	Index     int
}

type DuplicateCandidate struct {
	StampedCandidate
	Reason DuplicateReason
	// OriginalIndex points at the retained in-batch candidate; -1 for known.
	OriginalIndex int
}

type Partitioned struct {
	New        []StampedCandidate
	Duplicate  []DuplicateCandidate
	Collisions []*SignatureCollisionError
}

// Partition splits freshly discovered candidates into new and already-seen
// ones. Only the first occurrence of a signature within the batch is new.
// Input order is preserved in both lists.
func Partition(candidates []Candidate, known map[string]struct{}) Partitioned {
	return partition(candidates, known, Candidate.Signature)
}

func partition(candidates []Candidate, known map[string]struct{}, sign func(Candidate) string) Partitioned {
	out := Partitioned{
		New:       make([]StampedCandidate, 0, len(candidates)),
		Duplicate: make([]DuplicateCandidate, 0),
	}
	firstSeen := make(map[string]int, len(candidates))

	for i, c := range candidates {
		stamped := StampedCandidate{Candidate: c, Signature: sign(c), Index: i}

		if _, ok := known[stamped.Signature]; ok {
			out.Duplicate = append(out.Duplicate, DuplicateCandidate{
				StampedCandidate: stamped,
				Reason:           DuplicateKnown,
				OriginalIndex:    -1,
			})
			continue
		}

		if orig, ok := firstSeen[stamped.Signature]; ok {
			reason := DuplicateInBatch
			if candidates[orig].normalized() != c.normalized() {
				reason = DuplicateCollision
				out.Collisions = append(out.Collisions, &SignatureCollisionError{
					Signature: stamped.Signature,
					First:     candidates[orig],
					Second:    c,
				})
			}
			out.Duplicate = append(out.Duplicate, DuplicateCandidate{
				StampedCandidate: stamped,
				Reason:           reason,
				OriginalIndex:    orig,
			})
			continue
		}

		firstSeen[stamped.Signature] = i
		out.New = append(out.New, stamped)
	}
	return out
}

func (p Partitioned) Signatures() []string {
	out := make([]string, 0, len(p.New))
	for _, c := range p.New {
		out = append(out, c.Signature)
	}
	return out
}
