package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"llmgate/internal/assembler"
	"llmgate/pkg/types"
)

// requestError is a malformed client request detected before any service call.
type requestError struct {
	status int
	msg    string
}

func (e requestError) Error() string { return e.msg }

// sniffBytes is kept past the prompt budget of every uploaded file so a cut
// upload is still recognised as text or binary.
const sniffBytes = 4 << 10

// contextBudget is implemented by services that bound the assembled prompt.
type contextBudget interface {
	MaxContextBytes() int
}

// attachmentKeep is how many bytes of each uploaded file are worth keeping:
// twice the prompt budget (UTF-16 halves on decoding) plus a sniff window.
// Zero keeps everything.
func attachmentKeep(svc Service) int64 {
	if cb, ok := svc.(contextBudget); ok {
		if n := cb.MaxContextBytes(); n > 0 {
			return 2*int64(n) + sniffBytes
		}
	}
	return 0
}

type chatDecoder func(w http.ResponseWriter, r *http.Request, keep int64) (types.ChatRequest, error)

// decodeChatBody accepts application/json or multipart/form-data. JSON
// bodies are bounded by the body limit; multipart uploads stream under the
// larger upload limit and each file keeps at most keep bytes.
func decodeChatBody(w http.ResponseWriter, r *http.Request, keep int64) (types.ChatRequest, error) {
	var req types.ChatRequest
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return req, requestError{http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data"}
	}
	switch strings.ToLower(mediaType) {
	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes.Load())
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, bodyError(err, "invalid JSON body")
		}
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes.Load())
		files, fields, err := readMultipart(r, keep)
		if err != nil {
			return req, err
		}
		req.Model = fields["model"]
		req.Prompt = fields["prompt"]
		req.System = fields["system"]
		if raw := fields["options"]; raw != "" {
			var opts types.GenerateOptions
			if err := json.Unmarshal([]byte(raw), &opts); err != nil {
				return req, requestError{http.StatusBadRequest, "invalid options JSON"}
			}
			req.Options = &opts
		}
		req.Attachments = files
	default:
		return req, requestError{http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data"}
	}
	return req, validateChat(req)
}

// decodeChatQuery serves EventSource clients, which can only issue GET.
func decodeChatQuery(_ http.ResponseWriter, r *http.Request, _ int64) (types.ChatRequest, error) {
	q := r.URL.Query()
	req := types.ChatRequest{Model: q.Get("model"), Prompt: q.Get("prompt"), System: q.Get("system")}
	return req, validateChat(req)
}

func validateChat(req types.ChatRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return requestError{http.StatusBadRequest, "model is required"}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return requestError{http.StatusBadRequest, "prompt is required"}
	}
	return nil
}

func bodyError(err error, msg string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return requestError{http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", mbe.Limit)}
	}
	return requestError{http.StatusBadRequest, msg}
}

// readMultipart streams the form: text fields are collected, every file part
// named "attachments" (or "files") becomes an Attachment in upload order.
// With keep > 0 a file retains only its first keep bytes and the rest is
// discarded unread into memory. What is retained overall never exceeds the
// body limit.
func readMultipart(r *http.Request, keep int64) ([]types.Attachment, map[string]string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, requestError{http.StatusBadRequest, "invalid multipart body"}
	}
	retainLimit := maxBodyBytes.Load()
	var retained int64
	fields := map[string]string{}
	var files []types.Attachment
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, bodyError(err, "invalid multipart body")
		}
		file := isFilePart(part)
		limit := retainLimit - retained
		if file && keep > 0 && keep < limit {
			limit = keep
		}
		data, err := io.ReadAll(io.LimitReader(part, limit))
		if err != nil {
			_ = part.Close()
			return nil, nil, bodyError(err, "invalid multipart body")
		}
		rest, err := io.Copy(io.Discard, part)
		_ = part.Close()
		if err != nil {
			return nil, nil, bodyError(err, "invalid multipart body")
		}
		retained += int64(len(data))
		if rest > 0 && (!file || int64(len(data)) < keep || keep <= 0) {
			return nil, nil, requestError{http.StatusRequestEntityTooLarge, fmt.Sprintf("request keeps more than %d bytes", retainLimit)}
		}
		if file {
			files = append(files, types.Attachment{Filename: part.FileName(), Content: data, Partial: rest > 0})
			continue
		}
		fields[part.FormName()] = string(data)
	}
	return files, fields, nil
}

func isFilePart(p *multipart.Part) bool {
	switch p.FormName() {
	case "attachments", "files", "file":
		return true
	}
	return p.FileName() != ""
}

func chatHandler(svc Service, decode chatDecoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := middleware.GetReqID(r.Context())
		log := requestLogger(rid)
		lvl := requestLogLevel(r)

		req, err := decode(w, r, attachmentKeep(svc))
		if err != nil {
			var re requestError
			if errors.As(err, &re) {
				writeJSONErrorKind(w, re.status, re.msg, "bad_request")
				return
			}
			writeError(w, err)
			return
		}

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if sec := chatTimeout.Load(); sec > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(sec)*time.Second)
			defer tcancel()
		}

		start := time.Now()
		if lvl >= LevelInfo {
			log.Info().Str("model", req.Model).Int("attachments", len(req.Attachments)).Msg("chat start")
		}
		// A client-supplied X-Request-Id becomes the chat ID; otherwise the
		// gateway generates a URL-safe one.
		chat, err := svc.OpenChat(ctx, r.Header.Get(middleware.RequestIDHeader), req)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := writeError(w, err)
			if lvl >= LevelError {
				log.Warn().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("chat rejected")
			}
			return
		}
		defer chat.Close()

		ew := newEventWriter(w, r, lvl >= LevelDebug, log)
		if err := ew.WriteEvent(chat.Meta()); err != nil {
			return
		}
		err = chat.Relay(ew.WriteEvent)
		if lvl >= LevelInfo {
			ev := log.Info()
			if err != nil {
				ev = ev.Err(err)
			}
			ev.Dur("dur", time.Since(start)).Msg("chat end")
		}
	}
}

func attachmentsHandler(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.EqualFold(mediaType, "multipart/form-data") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be multipart/form-data")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes.Load())
	files, _, err := readMultipart(r, 0)
	if err != nil {
		var re requestError
		if errors.As(err, &re) {
			writeJSONErrorKind(w, re.status, re.msg, "bad_request")
			return
		}
		writeError(w, err)
		return
	}
	resp := types.AttachmentsResponse{Files: make([]types.AttachmentReport, 0, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, assembler.Inspect(f))
	}
	writeJSON(w, http.StatusOK, resp)
}
