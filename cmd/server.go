package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/blacktop/mcp-narrator/internal/narrator"
	"github.com/blacktop/mcp-narrator/internal/playback"
)

// serverVersion is stamped at build time.
var serverVersion = "dev"

// Tool argument payloads. Field names match the wire schema built in
// schemas.go.
type StartSessionArgs struct{}

type EnqueueChunkArgs struct {
	SessionID  string  `json:"session_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Speed      float64 `json:"speed,omitempty"`
}

type StreamArgs struct {
	SessionID string  `json:"session_id"`
	Text      string  `json:"text"`
	Speed     float64 `json:"speed,omitempty"`
}

type SetSpeedArgs struct {
	Speed float64 `json:"speed"`
}

type EmptyArgs struct{}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: s}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
	}
}

// forwardEvents relays playback lifecycle events to a connected client as
// MCP logging notifications. Best effort both ways: a failed send means the
// session is gone and the relay stops.
func forwardEvents(ss *mcp.ServerSession, n *narrator.Narrator) {
	ch, unsub := n.Events().Subscribe()
	defer unsub()
	for e := range ch {
		level := mcp.LoggingLevel("info")
		if e.Kind == playback.EventGenerationError || e.Kind == playback.EventError {
			level = mcp.LoggingLevel("warning")
		}
		if err := ss.Log(context.Background(), &mcp.LoggingMessageParams{
			Level:  level,
			Logger: "playback",
			Data:   e,
		}); err != nil {
			return
		}
	}
}

// newServer wires the narrator's operations up as MCP tools.
func newServer(n *narrator.Narrator) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-narrator",
		Version: serverVersion,
	}, &mcp.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			go forwardEvents(req.Session, n)
		},
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_start_session",
		Description: "Start a new narration session, superseding any current one. Returns the session ID to use for subsequent chunks.",
		InputSchema: buildStartSessionSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args StartSessionArgs) (*mcp.CallToolResult, any, error) {
		token := n.StartSession()
		return textResult(fmt.Sprintf("Session started: %s", token)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_enqueue_chunk",
		Description: "Enqueue one text chunk for synthesis and ordered gapless playback. Returns immediately; progress is reported through playback events.",
		InputSchema: buildEnqueueChunkSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EnqueueChunkArgs) (*mcp.CallToolResult, any, error) {
		if err := n.EnqueueChunk(ctx, args.SessionID, args.ChunkIndex, args.Text, args.Speed); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(fmt.Sprintf("Chunk %d enqueued", args.ChunkIndex)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_stream",
		Description: "Narrate one passage as a single progressive stream: audio starts before synthesis finishes. Fails if a stream is already live.",
		InputSchema: buildStreamSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args StreamArgs) (*mcp.CallToolResult, any, error) {
		if err := n.StreamText(ctx, args.SessionID, args.Text, args.Speed); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult("Streaming narration started"), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_stop",
		Description: "Stop playback, clear the queue, and end the current session.",
		InputSchema: buildEmptySchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
		n.Stop()
		return textResult("Playback stopped"), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_pause",
		Description: "Pause playback without losing buffered audio.",
		InputSchema: buildEmptySchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
		n.Pause()
		return textResult("Playback paused"), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_resume",
		Description: "Resume paused playback.",
		InputSchema: buildEmptySchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
		n.Resume()
		return textResult("Playback resumed"), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_set_speed",
		Description: "Set narration speed. Values are clamped to 0.5-2.0 and apply from the next generated chunk.",
		InputSchema: buildSetSpeedSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SetSpeedArgs) (*mcp.CallToolResult, any, error) {
		applied := n.SetSpeed(args.Speed)
		return textResult(fmt.Sprintf("Speed set to %.2f", applied)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "narrator_status",
		Description: "Report playback status: session, playing/paused, queue depth, current chunk, speed, and backend.",
		InputSchema: buildEmptySchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, any, error) {
		data, err := json.Marshal(n.CurrentStatus())
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(string(data)), nil, nil
	})

	return server
}
