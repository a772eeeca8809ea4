package ingress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nexusgate/gateway/pkg/provider"
)

// streamChatCompletion writes chunks as OpenAI-style SSE frames
// (`data: {json}\n\n`) until the channel closes or the upstream error
// channel yields one, terminating with `data: [DONE]\n\n` only on a clean
// finish. Once the 200 response has started, an upstream error is sent as
// one final in-band `data:` frame carrying the error envelope (type
// "stream_error"), without `[DONE]`.
func streamChatCompletion(w http.ResponseWriter, logger *slog.Logger, requestID, model string, chunks <-chan provider.StreamChunk, errs <-chan error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			frame := chatStreamFrame(chunk, model)
			payload, err := json.Marshal(frame)
			if err != nil {
				logger.Error("encoding stream chunk", "error", err, "request_id", requestID)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if chunk.Done {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if err != nil {
				logger.Warn("stream terminated by upstream error", "error", err, "request_id", requestID)
				payload, _ := json.Marshal(errorEnvelope{Error: errorBody{
					Message: err.Error(), Type: "stream_error", RequestID: requestID,
				}})
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
			return
		}
	}
}

type chatStreamFrameDelta struct {
	Content string `json:"content,omitempty"`
}

type chatStreamFrameChoice struct {
	Index        int                   `json:"index"`
	Delta        chatStreamFrameDelta  `json:"delta"`
	FinishReason *string               `json:"finish_reason"`
}

type chatStreamFrameBody struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Model   string                  `json:"model"`
	Choices []chatStreamFrameChoice `json:"choices"`
}

func chatStreamFrame(chunk provider.StreamChunk, model string) chatStreamFrameBody {
	modelName := chunk.Model
	if modelName == "" {
		modelName = model
	}

	var finishReason *string
	if chunk.FinishReason != "" {
		fr := chunk.FinishReason
		finishReason = &fr
	}

	return chatStreamFrameBody{
		ID:     chunk.ResponseID,
		Object: "chat.completion.chunk",
		Model:  modelName,
		Choices: []chatStreamFrameChoice{{
			Index:        0,
			Delta:        chatStreamFrameDelta{Content: chunk.Content},
			FinishReason: finishReason,
		}},
	}
}
