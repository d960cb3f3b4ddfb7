package container

// ContextualBuilder implements the fluent contextual override API.
//
//	// when the notes store asks for the logger, hand it the audit logger
//	c.When(notes.Token).Needs(logging.Token).Give("logger.audit")
type ContextualBuilder struct {
	container *Container
	consumer  Token
	needs     Token
}

// When starts a contextual override for consumer.
func (c *Container) When(consumer Token) *ContextualBuilder {
	return &ContextualBuilder{container: c, consumer: consumer}
}

// Needs names the dependency token being overridden.
func (b *ContextualBuilder) Needs(token Token) *ContextualBuilder {
	b.needs = token
	return b
}

// Give resolves replacement instead of the needed token, for this consumer only.
func (b *ContextualBuilder) Give(replacement Token) {
	b.container.mu.Lock()
	defer b.container.mu.Unlock()

	if _, ok := b.container.contextual[b.consumer]; !ok {
		b.container.contextual[b.consumer] = make(map[Token]Token)
	}
	b.container.contextual[b.consumer][b.needs] = replacement
	b.container.graphChanged()
}

// GiveValue registers value under a private token and gives that.
func (b *ContextualBuilder) GiveValue(value any) error {
	replacement := b.consumer + "#" + b.needs
	if err := b.container.Register(replacement, Value(value)); err != nil {
		return err
	}
	b.Give(replacement)
	return nil
}

func (c *Container) contextualToken(consumer, needed Token) Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contextualLocked(consumer, needed)
}

// contextualLocked must be called with mu held.
func (c *Container) contextualLocked(consumer, needed Token) Token {
	if m, ok := c.contextual[consumer]; ok {
		if t, ok := m[needed]; ok {
			return t
		}
	}
	return needed
}
