// internal/bridge/message.go
package bridge

import (
	"encoding/json"
	"fmt"

	"precursor/internal/errors"
	"precursor/internal/snapshot"
)

// Message type tags as they appear on the wire
const (
	TypeDocumentContent      = "documentContent"
	TypeRemoveUnsavedContent = "removeUnsavedContent"
	TypeFileList             = "fileList"
)

// Message is one notification sent to a display surface. The set of
// implementations is closed: DocumentContent, RemoveUnsavedContent and
// FileList.
type Message interface {
	Type() string
	FilePath() string
	isMessage()
}

// DocumentContent carries the full updated record for a path
type DocumentContent struct {
	Path          string  `json:"filePath"`
	Content       string  `json:"content"`
	IsDirty       bool    `json:"isDirty"`
	PreviousSaved *string `json:"previousSaved"`
	CurrentSaved  string  `json:"currentSaved"`
	LiveUnsaved   *string `json:"liveUnsaved"`
	IsUntracked   bool    `json:"isUntracked"`
}

func (DocumentContent) Type() string       { return TypeDocumentContent }
func (m DocumentContent) FilePath() string { return m.Path }
func (DocumentContent) isMessage()         {}

// MarshalJSON adds the type tag
func (m DocumentContent) MarshalJSON() ([]byte, error) {
	type plain DocumentContent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: TypeDocumentContent, plain: plain(m)})
}

// RemoveUnsavedContent tells the surface to drop everything cached for a path
type RemoveUnsavedContent struct {
	Path string `json:"filePath"`
}

func (RemoveUnsavedContent) Type() string       { return TypeRemoveUnsavedContent }
func (m RemoveUnsavedContent) FilePath() string { return m.Path }
func (RemoveUnsavedContent) isMessage()         {}

// MarshalJSON adds the type tag
func (m RemoveUnsavedContent) MarshalJSON() ([]byte, error) {
	type plain RemoveUnsavedContent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: TypeRemoveUnsavedContent, plain: plain(m)})
}

// FileList replaces the whole file list of a surface. It opens every stream
// so that a surface never misses a commit between hydrating and subscribing.
type FileList struct {
	Files []Entry `json:"files"`
}

func (FileList) Type() string     { return TypeFileList }
func (FileList) FilePath() string { return "" }
func (FileList) isMessage()       {}

// MarshalJSON adds the type tag
func (m FileList) MarshalJSON() ([]byte, error) {
	files := m.Files
	if files == nil {
		files = []Entry{}
	}
	return json.Marshal(struct {
		Type  string  `json:"type"`
		Files []Entry `json:"files"`
	}{Type: TypeFileList, Files: files})
}

// NewFileList snapshots every record of src
func NewFileList(src Source) FileList {
	return FileList{Files: SerializeAll(src)}
}

// NewDocumentContent builds the change message for a record
func NewDocumentContent(rec snapshot.Record) DocumentContent {
	return DocumentContent{
		Path:          rec.Path,
		Content:       rec.Content(),
		IsDirty:       rec.IsDirty(),
		PreviousSaved: rec.PreviousSaved,
		CurrentSaved:  rec.CurrentSaved,
		LiveUnsaved:   rec.LiveUnsaved,
		IsUntracked:   rec.IsUntracked,
	}
}

// Decode parses one wire message
func Decode(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.SerializationFailure("decoding message", err)
	}

	switch head.Type {
	case TypeDocumentContent:
		var m DocumentContent
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.SerializationFailure("decoding documentContent", err)
		}
		return m, nil
	case TypeRemoveUnsavedContent:
		var m RemoveUnsavedContent
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.SerializationFailure("decoding removeUnsavedContent", err)
		}
		return m, nil
	case TypeFileList:
		var m FileList
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.SerializationFailure("decoding fileList", err)
		}
		return m, nil
	}
	return nil, errors.SerializationFailure(fmt.Sprintf("unknown message type %q", head.Type), nil)
}

// Command is a request sent back from a display surface
type Command struct {
	Command string `json:"command"`
}

// CommandLogin asks the host to start the external login flow
const CommandLogin = "login"
