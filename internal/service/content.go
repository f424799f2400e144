package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/navigate"
)

const (
	contentCachePrefix = "content:"
	contentCacheTTL    = 5 * time.Minute

	// interactiveButtonLimit is the provider cap on reply buttons per message.
	interactiveButtonLimit = 3
)

// Built-in fallbacks for the configurable system texts. A bot_messages row
// with the same name overrides these.
var defaultBotMessages = map[string]string{
	model.BotMessageWelcome:        "¡Hola! 👋 Bienvenido al Camping. Elegí una opción del menú para empezar.",
	model.BotMessageSessionExpired: "Tu sesión expiró por inactividad. Volvemos al menú principal.",
	model.BotMessageInvalidOption:  "No entendí esa opción. Respondé con el número o letra de una opción del menú, 0 para el menú principal o * para ayuda.",
	model.BotMessageNonText:        "Por ahora solo puedo leer mensajes de texto. Escribí una opción del menú.",
	model.BotMessageFreeText:       "Gracias por tu mensaje. Para avanzar, elegí una opción del menú o escribí * para ver la ayuda.",
	model.BotMessageMissingContent: "Esa sección no está disponible en este momento. Escribí 0 para volver al menú principal.",
}

// ContentServiceOptions groups dependencies for ContentService.
type ContentServiceOptions struct {
	Repo   core.ContentRepository // Required: content repository
	Cache  core.CacheRepository   // Optional: shared cache for rendered content
	Logger *slog.Logger           // Optional: structured logger
}

// ContentService resolves and renders the menu tree into outbound message
// bodies. Rendered menus are cached; cache trouble degrades to direct reads.
type ContentService struct {
	repo   core.ContentRepository
	cache  core.CacheRepository
	logger *slog.Logger
}

// NewContentService constructs a new ContentService.
func NewContentService(opts ContentServiceOptions) (*ContentService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ContentRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "content_service")
	}
	return &ContentService{repo: opts.Repo, cache: opts.Cache, logger: logger}, nil
}

// ResolveOption implements navigate.OptionLookup by delegating to the repo.
func (s *ContentService) ResolveOption(ctx context.Context, menuID, key string) (*navigate.OptionTarget, error) {
	return s.repo.ResolveOption(ctx, menuID, key)
}

// RenderedContent is one outbound body plus its interactive alternatives.
type RenderedContent struct {
	Body        string
	Interactive []model.InteractivePayload
}

// RenderStep turns a navigation outcome into the text to send back.
func (s *ContentService) RenderStep(ctx context.Context, step navigate.Step) (*RenderedContent, error) {
	switch step.Kind {
	case navigate.ContentMenu:
		return s.RenderMenu(ctx, step.Target)
	case navigate.ContentResponse:
		return s.renderResponse(ctx, step.Target)
	case navigate.ContentHelp:
		return s.renderHelp(ctx)
	default:
		body, err := s.BotMessage(ctx, model.BotMessageInvalidOption)
		if err != nil {
			return nil, err
		}
		return &RenderedContent{Body: body}, nil
	}
}

// RenderMenu renders a menu with its options, serving from cache when warm.
func (s *ContentService) RenderMenu(ctx context.Context, menuID string) (*RenderedContent, error) {
	cacheKey := contentCachePrefix + "menu:" + menuID
	if cached := s.cacheGet(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	menu, err := s.repo.GetMenu(ctx, menuID)
	if errors.Is(err, data.ErrMenuNotFound) {
		body, merr := s.BotMessage(ctx, model.BotMessageMissingContent)
		if merr != nil {
			return nil, merr
		}
		return &RenderedContent{Body: body}, nil
	}
	if err != nil {
		return nil, err
	}

	rendered := renderMenu(menu)
	s.cacheSet(ctx, cacheKey, rendered)
	return rendered, nil
}

func (s *ContentService) renderResponse(ctx context.Context, responseID string) (*RenderedContent, error) {
	cacheKey := contentCachePrefix + "response:" + responseID
	if cached := s.cacheGet(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	resp, err := s.repo.GetResponse(ctx, responseID)
	if errors.Is(err, data.ErrResponseNotFound) {
		body, merr := s.BotMessage(ctx, model.BotMessageMissingContent)
		if merr != nil {
			return nil, merr
		}
		return &RenderedContent{Body: body}, nil
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(resp.Body)
	if resp.NextSteps != nil && *resp.NextSteps != "" {
		b.WriteString("\n\n")
		b.WriteString(*resp.NextSteps)
	}
	b.WriteString("\n\nEscribí # para volver o 0 para el menú principal.")

	rendered := &RenderedContent{Body: b.String()}
	s.cacheSet(ctx, cacheKey, rendered)
	return rendered, nil
}

func (s *ContentService) renderHelp(ctx context.Context) (*RenderedContent, error) {
	body, err := s.BotMessage(ctx, model.BotMessageInvalidOption)
	if err != nil {
		return nil, err
	}
	help := "Comandos disponibles:\n" +
		"0 o MENU: menú principal\n" +
		"# o VOLVER: paso anterior\n" +
		"* o AYUDA: esta ayuda\n\n" + body
	return &RenderedContent{Body: help}, nil
}

// BotMessage resolves one configurable system text, falling back to the
// built-in default when no row overrides it.
func (s *ContentService) BotMessage(ctx context.Context, name string) (string, error) {
	body, err := s.repo.GetBotMessage(ctx, name)
	if err != nil {
		return "", err
	}
	if body != "" {
		return body, nil
	}
	if fallback, ok := defaultBotMessages[name]; ok {
		return fallback, nil
	}
	return "", fmt.Errorf("bot message %q has no content", name)
}

// InvalidateCache drops every cached rendering after a content edit.
func (s *ContentService) InvalidateCache(ctx context.Context) {
	type prefixDeleter interface {
		DeleteByPrefix(ctx context.Context, prefix string) error
	}
	if pd, ok := s.cache.(prefixDeleter); ok && s.cache != nil {
		if err := pd.DeleteByPrefix(ctx, contentCachePrefix); err != nil && s.logger != nil {
			s.logger.Warn("content cache invalidation failed", "error", err)
		}
	}
}

func (s *ContentService) cacheGet(ctx context.Context, key string) *RenderedContent {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("content cache read failed", "key", key, "error", err)
		}
		return nil
	}
	if raw == nil {
		return nil
	}
	var rendered RenderedContent
	if err := json.Unmarshal(raw, &rendered); err != nil {
		return nil
	}
	return &rendered
}

func (s *ContentService) cacheSet(ctx context.Context, key string, rendered *RenderedContent) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rendered)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, contentCacheTTL); err != nil && s.logger != nil {
		s.logger.Warn("content cache write failed", "key", key, "error", err)
	}
}

func renderMenu(menu *model.Menu) *RenderedContent {
	var b strings.Builder
	if menu.Header != nil && *menu.Header != "" {
		b.WriteString(*menu.Header)
		b.WriteString("\n\n")
	}
	b.WriteString("*")
	b.WriteString(menu.Title)
	b.WriteString("*\n")
	for _, opt := range menu.Options {
		fmt.Fprintf(&b, "%s. %s\n", opt.Key, opt.Label)
	}
	if menu.Footer != nil && *menu.Footer != "" {
		b.WriteString("\n")
		b.WriteString(*menu.Footer)
	}

	rendered := &RenderedContent{Body: strings.TrimRight(b.String(), "\n")}
	rendered.Interactive = interactiveForMenu(menu)
	return rendered
}

// interactiveForMenu maps small menus to reply buttons and larger ones to a
// list message. The dispatcher falls back to the plain body when sends fail.
func interactiveForMenu(menu *model.Menu) []model.InteractivePayload {
	if len(menu.Options) == 0 {
		return nil
	}
	kind := "list"
	if len(menu.Options) <= interactiveButtonLimit {
		kind = "button"
	}
	payload, err := json.Marshal(map[string]any{
		"title":   menu.Title,
		"options": menu.Options,
	})
	if err != nil {
		return nil
	}
	return []model.InteractivePayload{{Kind: kind, Body: string(payload)}}
}
