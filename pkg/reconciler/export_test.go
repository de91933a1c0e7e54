package reconciler

// Polling reports whether a poll goroutine is running for id
func (r *Reconciler) Polling(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.pollers[id]
	return ok
}
