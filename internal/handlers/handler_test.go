package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-forge/internal/album"
	"identity-forge/internal/batch"
	"identity-forge/internal/catalog"
	"identity-forge/internal/portrait"
	"identity-forge/internal/session"
	"identity-forge/internal/telegram"
)

const chatID int64 = 42

type sentPhoto struct {
	img     portrait.Image
	caption string
}

type sentDocument struct {
	filename string
	caption  string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	keyboards [][][]telegram.Button
	photos    []sentPhoto
	documents []sentDocument
	answered  []string
	download  func(ctx context.Context, fileID string) (portrait.Image, error)
}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, rows [][]telegram.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, rows)
	return nil
}

func (f *fakeMessenger) SendPhoto(_ int64, img portrait.Image, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhoto{img: img, caption: caption})
	return nil
}

func (f *fakeMessenger) SendDocument(_ int64, _ portrait.Image, filename, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, sentDocument{filename: filename, caption: caption})
	return nil
}

func (f *fakeMessenger) SendUploading(int64) {}

func (f *fakeMessenger) AnswerCallback(callbackID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, callbackID)
}

func (f *fakeMessenger) DownloadFile(ctx context.Context, fileID string) (portrait.Image, error) {
	return f.download(ctx, fileID)
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeBatch struct {
	generate func(ctx context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error)
	calls    int
}

func (f *fakeBatch) GenerateBatch(ctx context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error) {
	f.calls++
	return f.generate(ctx, input, category)
}

func newHandler(tg *fakeMessenger, fb *fakeBatch) (*Handler, *session.Store) {
	store := session.NewStore(session.Options{})
	return New(Options{Messenger: tg, Batch: fb, Sessions: store}), store
}

func command(text string) telegram.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return telegram.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func callback(data string) telegram.Update {
	return telegram.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

var sourceImage = portrait.Image{Data: []byte("portrait"), MIMEType: "image/jpeg"}

func TestHandlePhoto_StoresPortraitAndOffersKeyboard(t *testing.T) {
	tg := &fakeMessenger{download: func(_ context.Context, fileID string) (portrait.Image, error) {
		assert.Equal(t, "large", fileID)
		return sourceImage, nil
	}}
	h, store := newHandler(tg, &fakeBatch{})

	err := h.HandleUpdate(context.Background(), telegram.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}})
	require.NoError(t, err)

	sess, ok := store.Get(sessionID(chatID))
	require.True(t, ok)
	require.NotNil(t, sess.Image)
	assert.Equal(t, sourceImage.Data, sess.Image.Data)

	require.Len(t, tg.keyboards, 1)
	assert.Equal(t, [][]telegram.Button{
		{{Text: "Generate Work Profiles", Data: "if:gen:WORK"}},
		{{Text: "Reset", Data: "if:reset"}},
	}, tg.keyboards[0])
}

func TestHandlePhoto_DownloadFailure(t *testing.T) {
	tg := &fakeMessenger{download: func(context.Context, string) (portrait.Image, error) {
		return portrait.Image{}, errors.New("boom")
	}}
	h, store := newHandler(tg, &fakeBatch{})

	err := h.HandleUpdate(context.Background(), telegram.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{{FileID: "f"}},
	}})
	require.NoError(t, err)

	_, ok := store.Get(sessionID(chatID))
	assert.False(t, ok)
	assert.Contains(t, tg.lastText(), "Could not download")
}

func TestGenerate_RequiresPortrait(t *testing.T) {
	tg := &fakeMessenger{}
	fb := &fakeBatch{}
	h, _ := newHandler(tg, fb)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate")))
	assert.Zero(t, fb.calls)
	assert.Contains(t, tg.lastText(), "portrait photo first")
}

func TestGenerate_PartialSuccess(t *testing.T) {
	ids := catalog.StyleIDs(catalog.CategoryWork)
	tg := &fakeMessenger{}
	fb := &fakeBatch{generate: func(_ context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error) {
		assert.Equal(t, sourceImage, input)
		assert.Equal(t, catalog.CategoryWork, category)
		out := portrait.Results{}
		for _, id := range ids[1:] {
			out[id] = portrait.Image{Data: []byte(id), MIMEType: "image/png"}
		}
		return out, nil
	}}
	h, store := newHandler(tg, fb)
	store.SetImage(sessionID(chatID), sourceImage)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate work")))

	require.Len(t, tg.photos, len(ids)-1)
	assert.Equal(t, catalog.Name(ids[1]), tg.photos[0].caption)
	assert.Contains(t, tg.lastText(), "Could not generate: "+catalog.Name(ids[0]))

	sess, _ := store.Get(sessionID(chatID))
	assert.Len(t, sess.Results, len(ids)-1)
	assert.False(t, sess.Generating)
}

func TestGenerate_AllFailed(t *testing.T) {
	tg := &fakeMessenger{}
	fb := &fakeBatch{generate: func(context.Context, portrait.Image, catalog.Category) (portrait.Results, error) {
		return nil, batch.ErrAllFailed
	}}
	h, store := newHandler(tg, fb)
	store.SetImage(sessionID(chatID), sourceImage)

	require.NoError(t, h.HandleUpdate(context.Background(), callback("if:gen:WORK")))

	assert.Equal(t, retryMessage, tg.lastText())
	assert.Empty(t, tg.photos)
	assert.Equal(t, []string{"cb1"}, tg.answered)
}

func TestGenerate_UnknownCategory(t *testing.T) {
	tg := &fakeMessenger{}
	fb := &fakeBatch{generate: func(context.Context, portrait.Image, catalog.Category) (portrait.Results, error) {
		return nil, batch.ErrNoTargets
	}}
	h, store := newHandler(tg, fb)
	store.SetImage(sessionID(chatID), sourceImage)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate travel")))
	assert.Equal(t, "❌ No roles defined for category TRAVEL.", tg.lastText())
}

func TestGenerate_Busy(t *testing.T) {
	tg := &fakeMessenger{}
	fb := &fakeBatch{}
	h, store := newHandler(tg, fb)
	store.SetImage(sessionID(chatID), sourceImage)
	require.True(t, store.Begin(sessionID(chatID)))

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate")))
	assert.Zero(t, fb.calls)
	assert.Contains(t, tg.lastText(), "already running")
}

func TestGenerate_ResetWhileRunning(t *testing.T) {
	tg := &fakeMessenger{}
	var store *session.Store
	fb := &fakeBatch{generate: func(context.Context, portrait.Image, catalog.Category) (portrait.Results, error) {
		store.Reset(sessionID(chatID))
		return portrait.Results{"pilot": {Data: []byte("stale"), MIMEType: "image/png"}}, nil
	}}
	var h *Handler
	h, store = newHandler(tg, fb)
	store.SetImage(sessionID(chatID), sourceImage)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/generate")))

	assert.Empty(t, tg.photos)
	assert.Contains(t, tg.lastText(), "reset while generating")
	sess, _ := store.Get(sessionID(chatID))
	assert.Empty(t, sess.Results)
}

func TestResultCommand(t *testing.T) {
	tg := &fakeMessenger{}
	h, store := newHandler(tg, &fakeBatch{})
	store.Merge(sessionID(chatID), portrait.Results{"doctor": {Data: []byte("x"), MIMEType: "image/png"}})

	require.NoError(t, h.HandleUpdate(context.Background(), command("/result doctor")))
	require.Len(t, tg.documents, 1)
	assert.Equal(t, sentDocument{filename: "identity-forge-doctor.png", caption: "Doctor"}, tg.documents[0])

	require.NoError(t, h.HandleUpdate(context.Background(), command("/result pilot")))
	assert.Contains(t, tg.lastText(), `No result for "pilot"`)

	require.NoError(t, h.HandleUpdate(context.Background(), command("/result")))
	assert.Contains(t, tg.lastText(), "Usage")
}

func TestResetCallback(t *testing.T) {
	tg := &fakeMessenger{}
	h, store := newHandler(tg, &fakeBatch{})
	store.SetImage(sessionID(chatID), sourceImage)
	store.Merge(sessionID(chatID), portrait.Results{"doctor": {Data: []byte("x")}})

	require.NoError(t, h.HandleUpdate(context.Background(), callback("if:reset")))

	sess, _ := store.Get(sessionID(chatID))
	assert.Nil(t, sess.Image)
	assert.Empty(t, sess.Results)
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data, action, arg string
	}{
		{"if:gen:WORK", "gen", "WORK"},
		{"if:reset", "reset", ""},
		{"other:gen:WORK", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		action, arg := parseCallback(tt.data)
		assert.Equal(t, tt.action, action, tt.data)
		assert.Equal(t, tt.arg, arg, tt.data)
	}
}

func TestStylesText(t *testing.T) {
	text := stylesText()
	for _, s := range catalog.Styles() {
		assert.Contains(t, text, s.ID)
		assert.Contains(t, text, s.Name)
	}
}

func TestHandleAlbum_UsesFirstPhoto(t *testing.T) {
	var downloaded []string
	tg := &fakeMessenger{download: func(_ context.Context, fileID string) (portrait.Image, error) {
		downloaded = append(downloaded, fileID)
		return sourceImage, nil
	}}
	h, store := newHandler(tg, &fakeBatch{})

	h.HandleAlbum(context.Background(), album.Album{ChatID: chatID, FileIDs: []string{"first", "second"}})

	assert.Equal(t, []string{"first"}, downloaded)
	_, ok := store.Get(sessionID(chatID))
	assert.True(t, ok)
	assert.Contains(t, tg.lastText(), "You sent 2 photos")
	assert.Len(t, tg.keyboards, 1)
}

func TestHandlePhoto_AlbumIsCollected(t *testing.T) {
	tg := &fakeMessenger{download: func(context.Context, string) (portrait.Image, error) {
		t.Fatal("album photos must not be downloaded individually")
		return portrait.Image{}, nil
	}}
	h, _ := newHandler(tg, &fakeBatch{})
	collector := album.New(album.Options{Quiet: time.Hour})
	h.SetAlbumCollector(collector)

	err := h.HandleUpdate(context.Background(), telegram.Update{Message: &tgbotapi.Message{
		Chat:         &tgbotapi.Chat{ID: chatID},
		MediaGroupID: "g1",
		Photo:        []tgbotapi.PhotoSize{{FileID: "p"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, collector.Pending())
	assert.Empty(t, tg.texts)
}
