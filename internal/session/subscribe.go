package session

// Subscribe returns a channel that receives the State after every
// transition, and a func that ends the subscription. Each subscriber holds
// at most one pending State: a slow reader skips intermediate states but
// always ends up with the latest one. The current State is delivered first.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 1)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.stateLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// publishLocked delivers the current State to every subscriber, replacing
// any State a subscriber has not read yet. Callers must hold c.mu.
func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	st := c.stateLocked()
	for _, ch := range c.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
