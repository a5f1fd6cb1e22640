// Package agentmesh is a lightweight meta-package that re-exports the
// discovery and messaging building blocks from its subpackages. Most
// users should import the specific subpackage they need:
//   - github.com/agentmesh/agentmesh/core - cards, envelopes, registries
//   - github.com/agentmesh/agentmesh/comm - connection manager and transport
//   - github.com/agentmesh/agentmesh/tasks - task store, queues, dispatcher
//   - github.com/agentmesh/agentmesh/telemetry - logging and tracing
package agentmesh

import (
	"github.com/agentmesh/agentmesh/comm"
	"github.com/agentmesh/agentmesh/core"
	"github.com/agentmesh/agentmesh/tasks"
)

// Re-export core types.
type (
	AgentCard     = core.AgentCard
	RegistryEntry = core.RegistryEntry
	Registry      = core.Registry

	Envelope      = core.Envelope
	MessageType   = core.MessageType
	Priority      = core.Priority
	MessageOption = core.MessageOption

	Config = core.Config
	Option = core.Option

	Logger    = core.Logger
	Telemetry = core.Telemetry
	Span      = core.Span
)

// Re-export communication types.
type (
	ConnectionManager = comm.ConnectionManager
	BroadcastResult   = comm.BroadcastResult
	Response          = comm.Response
	SendRecord        = comm.SendRecord
	Transport         = comm.Transport
)

// Re-export task types.
type (
	TaskRecord   = tasks.Record
	TaskStore    = tasks.Store
	EventQueue   = tasks.EventQueue
	QueueManager = tasks.QueueManager
	Dispatcher   = tasks.Dispatcher
	Executor     = tasks.Executor
)

// Re-export message type constants.
const (
	MessageTypeTaskRequest           = core.MessageTypeTaskRequest
	MessageTypeTaskResponse          = core.MessageTypeTaskResponse
	MessageTypeCollaborationRequest  = core.MessageTypeCollaborationRequest
	MessageTypeCollaborationResponse = core.MessageTypeCollaborationResponse
	MessageTypeStatusUpdate          = core.MessageTypeStatusUpdate
	MessageTypeCapabilityQuery       = core.MessageTypeCapabilityQuery
	MessageTypeCapabilityResponse    = core.MessageTypeCapabilityResponse
	MessageTypeHeartbeat             = core.MessageTypeHeartbeat
	MessageTypeError                 = core.MessageTypeError
	MessageTypeCustom                = core.MessageTypeCustom
)

// Re-export constructors and options.
var (
	NewMessage              = core.NewMessage
	NewTaskRequest          = core.NewTaskRequest
	NewTaskResponse         = core.NewTaskResponse
	NewCollaborationRequest = core.NewCollaborationRequest
	NewStatusUpdate         = core.NewStatusUpdate
	NewCapabilityResponse   = core.NewCapabilityResponse
	NewHeartbeat            = core.NewHeartbeat

	NewLocalRegistry        = core.NewLocalRegistry
	NewLocalRegistryWithTTL = core.NewLocalRegistryWithTTL
	NewHTTPRegistry         = core.NewHTTPRegistry
	NewRedisRegistry        = core.NewRedisRegistry
	NewRegistryServer       = core.NewRegistryServer
	NewRegistryFromConfig   = core.NewRegistryFromConfig

	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig

	NewConnectionManager           = comm.NewConnectionManager
	NewConnectionManagerFromConfig = comm.NewConnectionManagerFromConfig
	NewHTTPTransport               = comm.NewHTTPTransport

	NewMemoryStore  = tasks.NewMemoryStore
	NewRedisStore   = tasks.NewRedisStore
	NewQueueManager = tasks.NewQueueManager
	NewEventQueue   = tasks.NewEventQueue
	NewDispatcher   = tasks.NewDispatcher
)
