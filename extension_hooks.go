package delivery

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-delivery/inbound"
)

// SourcePack declares a named set of incoming webhook sources and their
// verification secrets. Hosts ship one pack per webhook provider.
type SourcePack struct {
	Name    string
	Secrets map[string]string
}

// HandlerPack binds incoming webhook sources to their processing handler.
type HandlerPack struct {
	Name    string
	Sources []string
	Handler inbound.Handler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects host-registered source packs, handler packs, and
// command/query bundles before the engine is assembled.
type ExtensionHooks struct {
	mu sync.RWMutex

	sourcePacks  map[string]SourcePack
	handlerPacks map[string]HandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		sourcePacks:  map[string]SourcePack{},
		handlerPacks: map[string]HandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterSourcePack(pack SourcePack) error {
	if h == nil {
		return fmt.Errorf("delivery: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("delivery: source pack name is required")
	}
	if len(pack.Secrets) == 0 {
		return fmt.Errorf("delivery: source pack %q has no sources", name)
	}
	for source, secret := range pack.Secrets {
		if strings.TrimSpace(source) == "" {
			return fmt.Errorf("delivery: source pack %q contains an empty source", name)
		}
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("delivery: source pack %q has no secret for source %q", name, source)
		}
	}

	normalized := SourcePack{
		Name:    name,
		Secrets: make(map[string]string, len(pack.Secrets)),
	}
	for source, secret := range pack.Secrets {
		normalized.Secrets[strings.TrimSpace(strings.ToLower(source))] = secret
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sourcePacks[name]; exists {
		return fmt.Errorf("delivery: source pack %q already registered", name)
	}
	h.sourcePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("delivery: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("delivery: handler pack name is required")
	}
	if len(pack.Sources) == 0 {
		return fmt.Errorf("delivery: handler pack %q has no sources", name)
	}
	if pack.Handler == nil {
		return fmt.Errorf("delivery: handler pack %q has no handler", name)
	}

	normalized := HandlerPack{
		Name:    name,
		Sources: make([]string, 0, len(pack.Sources)),
		Handler: pack.Handler,
	}
	for _, source := range pack.Sources {
		source = strings.TrimSpace(strings.ToLower(source))
		if source == "" {
			return fmt.Errorf("delivery: handler pack %q contains an empty source", name)
		}
		normalized.Sources = append(normalized.Sources, source)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("delivery: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("delivery: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("delivery: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("delivery: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("delivery: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// StaticSecrets flattens every registered source pack into the resolver the
// inbound gateway consumes. A source registered by two packs is a conflict.
func (h *ExtensionHooks) StaticSecrets() (inbound.StaticSecrets, error) {
	if h == nil {
		return inbound.StaticSecrets{}, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sourcePacks))
	for name := range h.sourcePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	secrets := inbound.StaticSecrets{}
	owner := map[string]string{}
	for _, name := range names {
		pack := h.sourcePacks[name]
		for source, secret := range pack.Secrets {
			if previous, exists := owner[source]; exists {
				return nil, fmt.Errorf(
					"delivery: source %q registered by both %q and %q",
					source, previous, name,
				)
			}
			owner[source] = name
			secrets[source] = secret
		}
	}
	return secrets, nil
}

// Handler builds a source-routing handler from the registered handler packs.
// Events from sources without a pack are rejected so they surface as errors
// rather than silently acking.
func (h *ExtensionHooks) Handler() (inbound.Handler, error) {
	if h == nil {
		return nil, fmt.Errorf("delivery: extension hooks are nil")
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := map[string]inbound.Handler{}
	owner := map[string]string{}
	for _, name := range names {
		pack := h.handlerPacks[name]
		for _, source := range pack.Sources {
			if previous, exists := owner[source]; exists {
				return nil, fmt.Errorf(
					"delivery: handler for source %q registered by both %q and %q",
					source, previous, name,
				)
			}
			owner[source] = name
			routes[source] = pack.Handler
		}
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("delivery: no handler packs registered")
	}
	return inbound.SourceRouter(routes), nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("delivery: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) SourcePacks() []SourcePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.sourcePacks))
	for name := range h.sourcePacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SourcePack, 0, len(names))
	for _, name := range names {
		pack := h.sourcePacks[name]
		copied := SourcePack{
			Name:    pack.Name,
			Secrets: make(map[string]string, len(pack.Secrets)),
		}
		for source, secret := range pack.Secrets {
			copied.Secrets[source] = secret
		}
		out = append(out, copied)
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
