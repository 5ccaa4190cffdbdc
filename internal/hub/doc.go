// Package hub resolves "what is current": the active client, the active
// scope, and through the scope the active span. A Hub is a stack of
// (client, scope) layers owned by one logical execution context.
//
// Go has no implicit task-local storage, so hubs travel explicitly: attach
// one to a context.Context with SetOnContext, or fall back to the
// process-wide CurrentHub. Forking work into a new goroutine must use
// Clone: the child gets the same client and a copied scope, so its
// mutations never leak back into the parent.
package hub
