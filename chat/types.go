package chat

import (
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

const Collection = "chats"

// MessagesCollection addresses the message sub-collection of one chat.
func MessagesCollection(chatID string) string {
	return Collection + "/" + chatID + "/messages"
}

// PairID is the chat id of the unordered pair {a, b}.
func PairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

type Relationship struct {
	ChatID       string          `json:"chatId"`
	ParticipantA user.ContactRef `json:"participantA"`
	ParticipantB user.ContactRef `json:"participantB"`
}

// Other returns the participant that is not self.
func (r Relationship) Other(self string) user.ContactRef {
	if r.ParticipantA.UserID == self {
		return r.ParticipantB
	}
	return r.ParticipantA
}

func (r Relationship) Has(userID string) bool {
	return r.ParticipantA.UserID == userID || r.ParticipantB.UserID == userID
}

type Message struct {
	ID       string `json:"id,omitempty"`
	SenderID string `json:"senderId"`
	Body     string `json:"body"`
	// SentAt is in unix milliseconds.
	SentAt int64 `json:"sentAt"`
}

type NewChatDto struct {
	Phone string `json:"phone"`
}

type SendDto struct {
	Body string `json:"body"`
}

func decodeRelationship(doc docstore.Document) (Relationship, error) {
	var r Relationship
	if err := doc.Decode(&r); err != nil {
		return Relationship{}, err
	}
	if r.ChatID == "" {
		r.ChatID = doc.ID
	}
	return r, nil
}

// Relationships decodes a chat snapshot, dropping documents that do not
// map to a Relationship.
func Relationships(docs []docstore.Document) []Relationship {
	return docstore.DecodeAll(docs, decodeRelationship)
}

func decodeMessage(doc docstore.Document) (Message, error) {
	var m Message
	if err := doc.Decode(&m); err != nil {
		return Message{}, err
	}
	m.ID = doc.ID
	return m, nil
}
