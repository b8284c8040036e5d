package domain

import (
	interfaces "github.com/lukeburns/channeler/internal/domain/interfaces"
	types "github.com/lukeburns/channeler/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PublicKey         = types.PublicKey
	SecretKey         = types.SecretKey
	ExpandedSecretKey = types.ExpandedSecretKey
	DiscoveryKey      = types.DiscoveryKey
	Identity          = types.Identity
	ChannelKeyPair    = types.ChannelKeyPair
	Scope             = types.Scope
	WriteRequest      = types.WriteRequest
	ReadRequest       = types.ReadRequest
	GetRequest        = types.GetRequest
	Metadata          = types.Metadata
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	ByteStorage     = interfaces.ByteStorage
	Locker          = interfaces.Locker
	StorageProvider = interfaces.StorageProvider
	KeyDeriver      = interfaces.KeyDeriver
	Log             = interfaces.Log
)

const (
	ScopePublic  = types.ScopePublic
	ScopePrivate = types.ScopePrivate

	PublicKeySize    = types.PublicKeySize
	SecretKeySize    = types.SecretKeySize
	DiscoveryKeySize = types.DiscoveryKeySize

	ExpandedSecretKeySize = types.ExpandedSecretKeySize

	DefaultNamespace = types.DefaultNamespace

	MetaChannel   = types.MetaChannel
	MetaNamespace = types.MetaNamespace
	MetaPeerKey   = types.MetaPeerKey
	MetaPrivate   = types.MetaPrivate
)

// Sentinel errors, re-exported.
var (
	ErrValidation   = types.ErrValidation
	ErrStorage      = types.ErrStorage
	ErrUnresolved   = types.ErrUnresolved
	ErrClose        = types.ErrClose
	ErrInvalidKey   = types.ErrInvalidKey
	ErrKeyMismatch  = types.ErrKeyMismatch
	ErrNotWritable  = types.ErrNotWritable
	ErrCoreNotFound = types.ErrCoreNotFound
	ErrClosed       = types.ErrClosed
	ErrLocked       = types.ErrLocked
)

// Request constructors, re-exported.
var (
	WritePublic  = types.WritePublic
	WritePrivate = types.WritePrivate
	ReadPublic   = types.ReadPublic
	ReadPrivate  = types.ReadPrivate
)

// Key parsing helpers, re-exported.
var (
	ParsePublicKey        = types.ParsePublicKey
	ParseSecretKey        = types.ParseSecretKey
	PublicKeyFromBytes    = types.PublicKeyFromBytes
	DiscoveryKeyFromBytes = types.DiscoveryKeyFromBytes
)
