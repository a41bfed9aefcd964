package kv

import "strings"

const (
	userPrefix    = "user:"
	cartPrefix    = "cart:"
	ordersPrefix  = "orders:"
	sessionPrefix = "session:"
	apiKeyPrefix  = "apikey:"
	emailPrefix   = "email:"

	// StockKey holds the single shared stock ledger.
	StockKey = "stock:shared"
)

// UserKey returns the key of an actor profile.
func UserKey(actorID string) string { return userPrefix + actorID }

// CartKey returns the key of an actor's cart.
func CartKey(actorID string) string { return cartPrefix + actorID }

// OrdersKey returns the key of an actor's order list.
func OrdersKey(actorID string) string { return ordersPrefix + actorID }

// OrdersPrefix is the scan prefix covering every actor's order list.
func OrdersPrefix() string { return ordersPrefix }

// ActorFromOrdersKey extracts the actor id from an orders key.
func ActorFromOrdersKey(key string) string { return strings.TrimPrefix(key, ordersPrefix) }

// SessionKey returns the key of a session's active actor.
func SessionKey(sessionID string) string { return sessionPrefix + sessionID }

// APIKeyKey returns the key of an admin API key record by its hash.
func APIKeyKey(hash string) string { return apiKeyPrefix + hash }

// EmailKey returns the key of the email -> actor id index.
func EmailKey(email string) string { return emailPrefix + strings.ToLower(strings.TrimSpace(email)) }

// Namespaced joins a backend namespace and a key.
func Namespaced(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// StripNamespace removes the backend namespace from a stored key.
func StripNamespace(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return strings.TrimPrefix(key, namespace+":")
}
