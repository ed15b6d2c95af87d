package telegram

import (
	"context"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"medlist/api/internal/intake"
	"medlist/api/internal/medlist"
	"medlist/api/internal/util"
)

const (
	defaultMaxBytes = 10 << 20
	defaultTimeout  = 180 * time.Second
)

var errTooLarge = errors.New("image too large")

// pickImage returns the largest photo size, or an image document.
func pickImage(msg *tgbotapi.Message) (fileID, mime string, ok bool) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, ph := range msg.Photo[1:] {
			if ph.Width*ph.Height >= best.Width*best.Height {
				best = ph
			}
		}
		return best.FileID, "image/jpeg", true
	}
	if d := msg.Document; d != nil && util.IsImageMIME(d.MimeType) {
		return d.FileID, d.MimeType, true
	}
	return "", "", false
}

func (r *Router) acceptImage(ctx context.Context, cid int64, fileID, mime string) {
	if !r.busy.tryLock(cid) {
		r.send(cid, "Still reading your previous image, one moment…")
		return
	}
	defer r.busy.unlock(cid)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.send(cid, "Image received, reading the medication list…")

	reqID := r.requestID(cid)
	log := r.log().With(zap.String("request_id", reqID), zap.Int64("chat_id", cid))

	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		log.Warn("telegram get file", zap.Error(err))
		r.send(cid, "Could not fetch the image from Telegram, please send it again.")
		return
	}
	img, err := r.download(ctx, url)
	if err != nil {
		log.Warn("telegram download", zap.Error(err))
		if errors.Is(err, errTooLarge) {
			r.send(cid, "That image is too large. Send a smaller photo.")
			return
		}
		r.send(cid, "Could not download the image, please send it again.")
		return
	}

	list, err := r.Svc.Parse(ctx, medlist.Request{
		ID:      reqID,
		Adapter: "telegram",
		LLMName: r.EngManager.Get(cid),
		Input:   intake.Input{File: img, FileMIME: util.PickMIME(mime, img)},
	})
	if err != nil {
		r.send(cid, FormatError(err))
		return
	}
	r.send(cid, FormatList(list))
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	limit := r.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	hc := r.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errTooLarge
	}
	return b, nil
}
