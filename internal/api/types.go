package api

import "time"

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "pairchat.v1.PairChat"

// Method names, relative to ServiceName.
const (
	MethodRegister = "Register"
	MethodLogin    = "Login"

	MethodMe                   = "Me"
	MethodSearchUsers          = "SearchUsers"
	MethodListUsers            = "ListUsers"
	MethodDirectory            = "Directory"
	MethodSetProfilePicture    = "SetProfilePicture"
	MethodProfilePicture       = "ProfilePicture"
	MethodDeleteProfilePicture = "DeleteProfilePicture"

	MethodRequestConnection = "RequestConnection"
	MethodAcceptConnection  = "AcceptConnection"
	MethodUnsendRequest     = "UnsendRequest"
	MethodDeleteRequest     = "DeleteRequest"
	MethodRemoveConnection  = "RemoveConnection"
	MethodBlock             = "Block"
	MethodUnblock           = "Unblock"
	MethodConnections       = "Connections"
	MethodRequests          = "Requests"
	MethodBlocked           = "Blocked"

	MethodStartConversation     = "StartConversation"
	MethodLoadConversation      = "LoadConversation"
	MethodDeleteConversation    = "DeleteConversation"
	MethodSendMessage           = "SendMessage"
	MethodEditMessage           = "EditMessage"
	MethodDeleteMessage         = "DeleteMessage"
	MethodClearMessages         = "ClearMessages"
	MethodSearchMessages        = "SearchMessages"
	MethodRenderTranscript      = "RenderTranscript"
	MethodRecentMessage         = "RecentMessage"
	MethodMarkSeen              = "MarkSeen"
	MethodSetConversationExpiry = "SetConversationExpiry"

	StreamJoin = "Join"

	// RoomHeader carries the room id once a Join subscription is live.
	RoomHeader = "room"
)

// FullMethod returns "/<service>/<method>".
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// --- auth ---

type Credentials struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

type RegisterResponse struct {
	UserID string `cbor:"user_id"`
}

type LoginResponse struct {
	UserID      string    `cbor:"user_id"`
	AccessToken string    `cbor:"access_token"`
	ExpiresAt   time.Time `cbor:"expires_at"`
}

// --- users and graph ---

type User struct {
	ID       string `cbor:"id"`
	Username string `cbor:"username"`
}

type UserList struct {
	Users []User `cbor:"users"`
}

type SearchUsersRequest struct {
	Term string `cbor:"term"`
}

// PeerRequest addresses the other side of a pair by username.
type PeerRequest struct {
	Peer string `cbor:"peer"`
}

type PictureUpload struct {
	Data []byte `cbor:"data"`
}

// Picture is a profile picture with its detected type.
type Picture struct {
	Data     []byte `cbor:"data"`
	MimeType string `cbor:"mime_type"`
}

// --- conversations ---

type Conversation struct {
	ID           string     `cbor:"id"`
	Participants []User     `cbor:"participants"`
	DeleteAt     *time.Time `cbor:"delete_at,omitempty"`
	CreatedAt    time.Time  `cbor:"created_at"`
	UpdatedAt    time.Time  `cbor:"updated_at"`
}

type Attachment struct {
	Data     []byte `cbor:"data"`
	MimeType string `cbor:"mime_type"`
	Kind     string `cbor:"kind"`
}

type Message struct {
	ID             string      `cbor:"id"`
	ConversationID string      `cbor:"conversation_id"`
	SenderID       string      `cbor:"sender_id"`
	SenderName     string      `cbor:"sender_name,omitempty"`
	Content        string      `cbor:"content"`
	Attachment     *Attachment `cbor:"attachment,omitempty"`
	Private        bool        `cbor:"private"`
	Seen           bool        `cbor:"seen"`
	CreatedAt      time.Time   `cbor:"created_at"`
	ExpiresAt      *time.Time  `cbor:"expires_at,omitempty"`
}

type Transcript struct {
	Conversation Conversation `cbor:"conversation"`
	Messages     []Message    `cbor:"messages"`
}

type SendRequest struct {
	Peer       string   `cbor:"peer"`
	Content    string   `cbor:"content"`
	Attachment []byte   `cbor:"attachment,omitempty"`
	Private    bool     `cbor:"private"`
	TTLHours   *float64 `cbor:"ttl_hours,omitempty"`
}

type EditRequest struct {
	Peer       string  `cbor:"peer"`
	MessageID  string  `cbor:"message_id"`
	Content    *string `cbor:"content,omitempty"`
	Attachment []byte  `cbor:"attachment,omitempty"`
}

type MessageRequest struct {
	Peer      string `cbor:"peer"`
	MessageID string `cbor:"message_id"`
}

type SearchRequest struct {
	Peer  string `cbor:"peer"`
	Query string `cbor:"query"`
}

type MessageList struct {
	Messages []Message `cbor:"messages"`
}

type RenderResponse struct {
	HTML []byte `cbor:"html"`
}

type MarkSeenResponse struct {
	Marked int64 `cbor:"marked"`
}

// ExpiryRequest schedules deletion of the conversation; a nil DeleteAt clears it.
type ExpiryRequest struct {
	Peer     string     `cbor:"peer"`
	DeleteAt *time.Time `cbor:"delete_at,omitempty"`
}

// Event is one item of the Join stream.
type Event struct {
	Delivered Message `cbor:"delivered"`
}
