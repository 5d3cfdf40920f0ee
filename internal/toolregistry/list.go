package toolregistry

// ToolDef is the wire-exposed shape of a Tool — handler is never exposed,
// per spec.md 6's ToolDef.
type ToolDef struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description"`
	InputSchema map[string]any  `json:"inputSchema"`
	Annotations *Annotations    `json:"annotations,omitempty"`
}

const DefaultPageSize = 50

// ListResult is tools/list's result shape.
type ListResult struct {
	Tools      []ToolDef `json:"tools"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// List implements spec.md 4.2's list operation: at most pageSize tools
// starting at the position encoded by cursor, plus a nextCursor iff more
// remain.
func (r *Registry) List(cursor *CursorCodec, cursorToken string, pageSize int) ListResult {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	tools, epoch := r.snapshot()

	start, ok := cursor.Decode(cursorToken, epoch)
	if !ok || start > len(tools) {
		start = 0
	}

	end := start + pageSize
	if end > len(tools) {
		end = len(tools)
	}

	page := tools[start:end]
	defs := make([]ToolDef, 0, len(page))
	for _, t := range page {
		defs = append(defs, ToolDef{
			Name:        t.Name,
			Title:       t.Title,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Annotations: t.Annotations,
		})
	}

	result := ListResult{Tools: defs}
	if end < len(tools) {
		result.NextCursor = cursor.Encode(end, epoch)
	}
	return result
}
