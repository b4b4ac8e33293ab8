package aggregate

import "github.com/nicktill/toptalkers/pkg/storage"

// ConversationKey identifies a directed client/server pair.
// A->B and B->A are different conversations.
type ConversationKey struct {
	ClientAddress string
	ServerAddress string
}

func (k ConversationKey) String() string {
	return k.ClientAddress + "-" + k.ServerAddress
}

// ByConversation projects a talker record to its conversation
func ByConversation(rec storage.Record) ConversationKey {
	return ConversationKey{ClientAddress: rec.ClientAddress, ServerAddress: rec.ServerAddress}
}

// ProtocolKey identifies an application protocol label
type ProtocolKey struct {
	Application string
}

func (k ProtocolKey) String() string { return k.Application }

// ByProtocol projects a protocol record to its application
func ByProtocol(rec storage.Record) ProtocolKey {
	return ProtocolKey{Application: rec.Application}
}

// Conversation is a ranked talker result
type Conversation struct {
	ClientAddress string `json:"client_address"`
	ServerAddress string `json:"server_address"`
	Bytes         int64  `json:"bytes"`
}

// Protocol is a ranked protocol result
type Protocol struct {
	Application string `json:"application"`
	Bytes       int64  `json:"bytes"`
}

// Conversations converts totals into response rows
func Conversations(totals []Total[ConversationKey]) []Conversation {
	out := make([]Conversation, 0, len(totals))
	for _, t := range totals {
		out = append(out, Conversation{
			ClientAddress: t.Key.ClientAddress,
			ServerAddress: t.Key.ServerAddress,
			Bytes:         t.Bytes,
		})
	}
	return out
}

// Protocols converts totals into response rows
func Protocols(totals []Total[ProtocolKey]) []Protocol {
	out := make([]Protocol, 0, len(totals))
	for _, t := range totals {
		out = append(out, Protocol{Application: t.Key.Application, Bytes: t.Bytes})
	}
	return out
}
