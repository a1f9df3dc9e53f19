// Package roster keeps the ordered list of users present on the relay.
package roster

import "meshchat/native/internal/domain"

// Roster is the insertion-ordered participant list. It is owned by the
// session event loop and is not safe for concurrent use.
type Roster struct {
	participants []domain.Participant
	index        map[string]int
	onChange     func([]domain.Participant)
}

// New creates an empty roster. onChange, if set, is called after every Replace.
func New(onChange func([]domain.Participant)) *Roster {
	return &Roster{
		index:    make(map[string]int),
		onChange: onChange,
	}
}

// Replace swaps the whole list. Duplicate ids keep their first position and
// JoinOrder is reassigned from the resulting order.
func (r *Roster) Replace(list []domain.Participant) {
	participants := make([]domain.Participant, 0, len(list))
	index := make(map[string]int, len(list))
	for _, p := range list {
		if p.ID == "" {
			continue
		}
		if _, dup := index[p.ID]; dup {
			continue
		}
		p.JoinOrder = len(participants)
		if p.DisplayLabel == "" {
			p.DisplayLabel = p.ID
		}
		index[p.ID] = p.JoinOrder
		participants = append(participants, p)
	}
	r.participants = participants
	r.index = index

	if r.onChange != nil {
		r.onChange(r.Participants())
	}
}

// IndexOf returns the position of id, or -1 if it is not present.
func (r *Roster) IndexOf(id string) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

func (r *Roster) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Roster) Len() int { return len(r.participants) }

// Participants returns a copy of the current list.
func (r *Roster) Participants() []domain.Participant {
	out := make([]domain.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}
