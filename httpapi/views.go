package httpapi

import "pkt.systems/codebench/schema"

// EditorView is the projection rendered by the editor screen.
type EditorView struct {
	SessionID   schema.SessionID       `json:"session_id"`
	Language    schema.Language        `json:"language"`
	Version     string                 `json:"version"`
	SourceText  string                 `json:"source_text"`
	Theme       schema.ThemeName       `json:"theme"`
	EditorTheme string                 `json:"editor_theme"`
	Output      []string               `json:"output"`
	HasError    bool                   `json:"has_error"`
	Run         schema.OperationStatus `json:"run"`
	Running     bool                   `json:"running"`
	Importing   bool                   `json:"importing"`
	Notices     []schema.Notice        `json:"notices"`
	Languages   []schema.LanguageInfo  `json:"languages"`
}

// CodegenView is the projection rendered by the code generation screen.
type CodegenView struct {
	SessionID     schema.SessionID       `json:"session_id"`
	Theme         schema.ThemeName       `json:"theme"`
	GeneratedCode string                 `json:"generated_code"`
	Generate      schema.OperationStatus `json:"generate"`
	Generating    bool                   `json:"generating"`
	ChatHistory   []schema.ChatTurn      `json:"chat_history"`
	QueryInput    string                 `json:"query_input"`
	Query         schema.OperationStatus `json:"query"`
	Querying      bool                   `json:"querying"`
	Notices       []schema.Notice        `json:"notices"`
}

// NewEditorView projects a snapshot for the editor screen.
func NewEditorView(snap schema.SessionSnapshot) EditorView {
	run := snap.Status(schema.OperationRun)
	view := EditorView{
		SessionID:   snap.ID,
		Language:    snap.Document.Language,
		Version:     snap.Document.Language.RuntimeVersion(),
		SourceText:  snap.Document.SourceText,
		Theme:       snap.Document.Theme,
		EditorTheme: snap.Document.Theme.EditorTheme(),
		Output:      []string{},
		Run:         run,
		Running:     run.Pending(),
		Importing:   snap.ImportInProgress,
		Notices:     noticesOrEmpty(snap.Notices),
		Languages:   languageInfos(),
	}
	if snap.Output != nil {
		view.Output = append(view.Output, snap.Output.OutputLines...)
		view.HasError = snap.Output.HasError
	}
	return view
}

// NewCodegenView projects a snapshot for the code generation screen.
func NewCodegenView(snap schema.SessionSnapshot) CodegenView {
	generate := snap.Status(schema.OperationGenerate)
	query := snap.Status(schema.OperationQuery)
	history := snap.ChatHistory
	if history == nil {
		history = []schema.ChatTurn{}
	}
	return CodegenView{
		SessionID:     snap.ID,
		Theme:         snap.Document.Theme,
		GeneratedCode: snap.GeneratedCode,
		Generate:      generate,
		Generating:    generate.Pending(),
		ChatHistory:   history,
		QueryInput:    snap.QueryInput,
		Query:         query,
		Querying:      query.Pending(),
		Notices:       noticesOrEmpty(snap.Notices),
	}
}

func languageInfos() []schema.LanguageInfo {
	langs := schema.SupportedLanguages()
	out := make([]schema.LanguageInfo, 0, len(langs))
	for _, lang := range langs {
		out = append(out, schema.LanguageInfo{
			Language: lang,
			Version:  lang.RuntimeVersion(),
			Snippet:  lang.Snippet(),
		})
	}
	return out
}

func noticesOrEmpty(notices []schema.Notice) []schema.Notice {
	if notices == nil {
		return []schema.Notice{}
	}
	return notices
}
