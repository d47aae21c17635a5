package jupyter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/x/ansi"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
)

// Kernel talks to one Jupyter kernel through the server's REST and
// websocket APIs. At most one cell executes at a time; Execute holds
// the kernel lock for the full round trip.
type Kernel struct {
	baseURL string
	name    string
	rest    *resty.Client
	log     *logging.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	kernelID string
	session  string
}

// NewKernel creates a client for a kernel on the given server base URL
// (e.g. "http://localhost:8001"). The kernel is not started until
// Start is called.
func NewKernel(baseURL, name string, log *logging.Logger) *Kernel {
	if log == nil {
		log = logging.NewNop()
	}
	return &Kernel{
		baseURL: baseURL,
		name:    name,
		rest:    resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		log:     log,
		session: uuid.NewString(),
	}
}

// Start launches a kernel on the server and connects its channels
// websocket.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.conn != nil {
		return nil
	}

	var info kernelInfo
	resp, err := k.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": k.name}).
		SetResult(&info).
		Post("/api/kernels")
	if err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("start kernel: server returned %s", resp.Status())
	}
	k.kernelID = info.ID

	wsURL := strings.Replace(k.baseURL, "http", "ws", 1) +
		"/api/kernels/" + k.kernelID + "/channels"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect kernel channels: %w", err)
	}
	k.conn = conn

	k.log.Info("kernel started",
		zap.String("kernel_id", k.kernelID),
		zap.String("kernel_name", k.name),
	)
	return nil
}

// Execute runs one cell and collects its output. Stream output,
// results and tracebacks are concatenated into Output.Text; rendered
// images become data URLs in Output.Images. The call returns once the
// kernel has both replied and gone idle, or errors when timeout
// elapses first (the kernel is interrupted in that case).
func (k *Kernel) Execute(ctx context.Context, code string, timeout time.Duration) (*Output, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.conn == nil {
		return nil, fmt.Errorf("kernel not started")
	}

	msgID := uuid.NewString()
	req := message{
		Header: header{
			MsgID:    msgID,
			Username: "codebox",
			Session:  k.session,
			MsgType:  "execute_request",
			Version:  protocolVersion,
			Date:     time.Now().UTC().Format(time.RFC3339),
		},
		Metadata: map[string]interface{}{},
		Content: map[string]interface{}{
			"code":             code,
			"silent":           false,
			"store_history":    true,
			"user_expressions": map[string]interface{}{},
			"allow_stdin":      false,
			"stop_on_error":    true,
		},
		Channel: "shell",
	}

	payload, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode execute_request: %w", err)
	}
	if err := k.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		k.teardownLocked()
		return nil, fmt.Errorf("send execute_request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = k.conn.SetReadDeadline(deadline)

	out := &Output{}
	var parts []string
	gotReply := false
	idle := false

	for !(gotReply && idle) {
		_, data, err := k.conn.ReadMessage()
		if err != nil {
			k.interrupt()
			if websocket.IsUnexpectedCloseError(err) {
				k.teardownLocked()
			}
			return nil, fmt.Errorf("cell execution timed out after %s", timeout)
		}

		var in message
		if err := sonic.Unmarshal(data, &in); err != nil {
			k.log.Warn("unparseable kernel message", zap.Error(err))
			continue
		}
		if in.ParentHeader.MsgID != msgID {
			continue
		}

		switch in.Header.MsgType {
		case "stream":
			if text, ok := in.Content["text"].(string); ok {
				parts = append(parts, text)
			}
		case "execute_result", "display_data":
			collectData(in.Content, &parts, out)
		case "error":
			parts = append(parts, formatTraceback(in.Content))
		case "execute_reply":
			gotReply = true
		case "status":
			if state, _ := in.Content["execution_state"].(string); state == "idle" {
				idle = true
			}
		}
	}

	out.Text = strings.TrimRight(strings.Join(parts, ""), "\n")
	return out, nil
}

// Close shuts down the channels connection and deletes the kernel.
func (k *Kernel) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.conn != nil {
		_ = k.conn.Close()
		k.conn = nil
	}
	if k.kernelID != "" {
		_, _ = k.rest.R().Delete("/api/kernels/" + k.kernelID)
		k.kernelID = ""
	}
}

// interrupt asks the server to interrupt the running cell. Best
// effort; the caller already reports the timeout.
func (k *Kernel) interrupt() {
	if k.kernelID == "" {
		return
	}
	_, err := k.rest.R().Post("/api/kernels/" + k.kernelID + "/interrupt")
	if err != nil {
		k.log.Warn("kernel interrupt failed", zap.Error(err))
	}
}

func (k *Kernel) teardownLocked() {
	if k.conn != nil {
		_ = k.conn.Close()
		k.conn = nil
	}
}

// collectData extracts the preferred representations from a
// display_data/execute_result content bundle.
func collectData(content map[string]interface{}, parts *[]string, out *Output) {
	data, ok := content["data"].(map[string]interface{})
	if !ok {
		return
	}
	if png, ok := data["image/png"].(string); ok {
		out.Images = append(out.Images, "data:image/png;base64,"+strings.TrimSpace(png))
	}
	if text, ok := data["text/plain"].(string); ok {
		*parts = append(*parts, text+"\n")
	}
}

// formatTraceback joins and de-colors an error traceback.
func formatTraceback(content map[string]interface{}) string {
	raw, ok := content["traceback"].([]interface{})
	if !ok {
		return ""
	}
	lines := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			lines = append(lines, ansi.Strip(s))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
