package jupyter

// Jupyter messaging protocol frames, as carried over the kernel's
// multiplexed websocket channel.

// header identifies one protocol message.
type header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
	Date     string `json:"date"`
}

// message is one frame on the kernel channels socket. The Channel
// field multiplexes shell/iopub/stdin over a single connection.
type message struct {
	Header       header                 `json:"header"`
	ParentHeader header                 `json:"parent_header"`
	Metadata     map[string]interface{} `json:"metadata"`
	Content      map[string]interface{} `json:"content"`
	Channel      string                 `json:"channel"`
}

// kernelInfo is the gateway's kernel resource representation.
type kernelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Output is the collected result of one executed cell.
type Output struct {
	Text   string
	Images []string // data URLs
}

const protocolVersion = "5.3"
