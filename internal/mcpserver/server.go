// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes maplab board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/models"
)

const contractURI = "maplab://board-contract"

// Server wraps the MCP server with maplab tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *boardservice.Service
	assistant models.Participant
}

// New creates a new MCP server with all board tools registered. Every edit
// is made as the assistant participant.
func New(svc *boardservice.Service, assistant models.Participant) *Server {
	s := &Server{svc: svc, assistant: assistant}

	s.mcp = server.NewMCPServer(
		"Maplab",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	room := mcp.WithString("room", mcp.Required(), mcp.Description("Room (board) id"))
	noteID := mcp.WithString("id", mcp.Required(), mcp.Description("Note id"))

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note of a board in drawing order."),
		room,
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read one note of a board."),
		room, noteID,
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("add_note", append([]mcp.ToolOption{
		mcp.WithDescription("Add a sticky note with default style at a random position. " +
			"Optional fields are applied to the new note in the same change. " +
			"Read the board contract via get_board_contract first."),
		room,
	}, patchOptions()...)...), s.addNote)

	s.mcp.AddTool(mcp.NewTool("update_note", append([]mcp.ToolOption{
		mcp.WithDescription("Change some fields of a note. Omitted fields are left as they are."),
		room, noteID,
	}, patchOptions()...)...), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note. Deleting a missing note does nothing."),
		room, noteID,
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_fonts",
		mcp.WithDescription("List the font presets a note can use."),
	), s.listFonts)

	s.mcp.AddTool(mcp.NewTool("get_board_contract",
		mcp.WithDescription("Returns the note model: fields, ranges and defaults."),
	), s.getBoardContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Board Contract",
			mcp.WithResourceDescription("Sticky note fields, ranges and defaults."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

func patchOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("x", mcp.Description("Left edge in canvas pixels")),
		mcp.WithNumber("y", mcp.Description("Top edge in canvas pixels")),
		mcp.WithNumber("width", mcp.Description("Width, at least 100")),
		mcp.WithNumber("height", mcp.Description("Height, at least 100")),
		mcp.WithString("text", mcp.Description("Note text")),
		mcp.WithString("fillColor", mcp.Description("Hex fill colour")),
		mcp.WithString("strokeColor", mcp.Description("Hex border colour")),
		mcp.WithNumber("fillOpacity", mcp.Description("Fill opacity, 0 to 1")),
		mcp.WithNumber("strokeOpacity", mcp.Description("Border opacity, 0 to 1")),
		mcp.WithNumber("strokeWidth", mcp.Description("Border width, 0 to 10")),
		mcp.WithString("fontClassName", mcp.Description("Font class name from list_fonts")),
	}
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, errRes := s.room(ctx, req)
	if errRes != nil {
		return errRes, nil
	}
	return jsonResult(room.Notes())
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, errRes := s.room(ctx, req)
	if errRes != nil {
		return errRes, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := room.GetNote(id)
	if err != nil {
		return noteError(id, err), nil
	}
	return jsonResult(n)
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, errRes := s.room(ctx, req)
	if errRes != nil {
		return errRes, nil
	}
	patch, err := bindPatch(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var id string
	room.Session(s.assistant).Mutate(func(tx *board.Tx, self models.Participant) {
		id = board.AddNote(tx, self)
		if id != "" && !patch.IsEmpty() {
			board.UpdateNote(tx, self, id, patch)
		}
	})
	if id == "" {
		return mcp.NewToolResultError("the assistant is read-only on this board"), nil
	}
	n, err := room.GetNote(id)
	if err != nil {
		return noteError(id, err), nil
	}
	return jsonResult(n)
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, errRes := s.room(ctx, req)
	if errRes != nil {
		return errRes, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := room.GetNote(id); err != nil {
		return noteError(id, err), nil
	}
	patch, err := bindPatch(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if patch.IsEmpty() {
		return mcp.NewToolResultError("nothing to update"), nil
	}
	room.Session(s.assistant).UpdateNote(id, patch)
	n, err := room.GetNote(id)
	if err != nil {
		return noteError(id, err), nil
	}
	return jsonResult(n)
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	room, errRes := s.room(ctx, req)
	if errRes != nil {
		return errRes, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	room.Session(s.assistant).DeleteNote(id)
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) listFonts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(board.FontPresets)
}

func (s *Server) getBoardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(BoardContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     BoardContract,
		},
	}, nil
}

func (s *Server) room(ctx context.Context, req mcp.CallToolRequest) (*boardservice.Room, *mcp.CallToolResult) {
	id, err := req.RequireString("room")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	room, err := s.svc.Room(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidRoom) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid room id: %q", id))
		}
		return nil, mcp.NewToolResultError(err.Error())
	}
	return room, nil
}

// bindPatch decodes the optional note fields of a tool call. The selection
// is never taken from arguments.
func bindPatch(req mcp.CallToolRequest) (models.Patch, error) {
	var patch models.Patch
	if req.GetArguments() == nil {
		return patch, nil
	}
	if err := req.BindArguments(&patch); err != nil {
		return models.Patch{}, fmt.Errorf("invalid arguments: %w", err)
	}
	patch.SelectedBy = nil
	if err := board.ValidatePatch(&patch); err != nil {
		return models.Patch{}, err
	}
	return patch, nil
}

func noteError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
