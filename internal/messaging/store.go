package messaging

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

type standupState struct {
	active    bool
	deadline  int64
	starterID UserID
	buffer    string
	// generation distinguishes flush tasks across restarts of the standup.
	generation int64
}

// conversation owns its roster, log and standup buffer. mu guards all of them.
type conversation struct {
	mu      sync.Mutex
	ref     ConversationRef
	name    string
	public  bool
	owners  []UserID
	members []UserID
	log     messageLog
	standup standupState
	removed bool
}

func (c *conversation) isMember(userID UserID) bool {
	return lo.Contains(c.members, userID)
}

func (c *conversation) isOwner(userID UserID) bool {
	return lo.Contains(c.owners, userID)
}

func (c *conversation) view() ConversationView {
	return ConversationView{
		Ref:       c.ref,
		Name:      c.name,
		Public:    c.public,
		OwnerIDs:  append([]UserID{}, c.owners...),
		MemberIDs: append([]UserID{}, c.members...),
	}
}

// store indexes conversations and the conversation owning each message.
// mu and indexMu are leaf locks: they may be taken while a conversation lock is
// held, never the other way round.
type store struct {
	mu            sync.RWMutex
	conversations map[ConversationRef]*conversation
	nextID        map[ConversationKind]ConversationID

	indexMu sync.RWMutex
	index   map[MessageID]ConversationRef
}

func newStore() *store {
	return &store{
		conversations: make(map[ConversationRef]*conversation),
		nextID:        map[ConversationKind]ConversationID{KindChannel: 1, KindDM: 1},
		index:         make(map[MessageID]ConversationRef),
	}
}

func (s *store) reset() {
	s.mu.Lock()
	previous := s.conversations
	s.conversations = make(map[ConversationRef]*conversation)
	s.nextID = map[ConversationKind]ConversationID{KindChannel: 1, KindDM: 1}
	s.mu.Unlock()

	for _, conv := range previous {
		conv.mu.Lock()
		conv.removed = true
		conv.mu.Unlock()
	}

	s.indexMu.Lock()
	s.index = make(map[MessageID]ConversationRef)
	s.indexMu.Unlock()
}

func (s *store) create(kind ConversationKind, name string, public bool, owners, members []UserID) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID[kind]
	s.nextID[kind] = id + 1
	conv := &conversation{
		ref:     ConversationRef{Kind: kind, ID: id},
		name:    name,
		public:  public,
		owners:  append([]UserID{}, owners...),
		members: append([]UserID{}, members...),
	}
	s.conversations[conv.ref] = conv
	return conv
}

func (s *store) insert(conv *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ref] = conv
	if next := conv.ref.ID + 1; next > s.nextID[conv.ref.Kind] {
		s.nextID[conv.ref.Kind] = next
	}
}

func (s *store) get(ref ConversationRef) (*conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[ref]
	return conv, ok
}

func (s *store) delete(ref ConversationRef) {
	s.mu.Lock()
	delete(s.conversations, ref)
	s.mu.Unlock()
}

// ordered lists conversations channels first, each kind by ascending id.
func (s *store) ordered() []*conversation {
	s.mu.RLock()
	all := lo.Values(s.conversations)
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].ref.Kind != all[j].ref.Kind {
			return all[i].ref.Kind == KindChannel
		}
		return all[i].ref.ID < all[j].ref.ID
	})
	return all
}

func (s *store) indexMessage(id MessageID, ref ConversationRef) {
	s.indexMu.Lock()
	s.index[id] = ref
	s.indexMu.Unlock()
}

func (s *store) unindexMessage(id MessageID) {
	s.indexMu.Lock()
	delete(s.index, id)
	s.indexMu.Unlock()
}

func (s *store) locate(id MessageID) (ConversationRef, bool) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	ref, ok := s.index[id]
	return ref, ok
}
