package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/dabeaz/ranet/pkg/raft"
	jsonvalidator "github.com/galdor/go-json-validator"
	"github.com/galdor/go-log"
	"github.com/galdor/go-program"
	"github.com/galdor/go-service/pkg/service"
	"github.com/galdor/go-service/pkg/shttp"
)

type ServiceCfg struct {
	Service service.ServiceCfg `json:"service"`
	Cluster ClusterCfg         `json:"cluster"`
}

type ClusterCfg struct {
	Servers raft.ServerSet `json:"servers"`
}

type Service struct {
	Cfg     ServiceCfg
	Program *program.Program
	Service *service.Service
	Log     *log.Logger

	id raft.NodeId

	store      *Store
	raftServer *raft.Server
	apiServer  *APIServer
	repl       *REPL
}

func (cfg *ServiceCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.CheckObject("service", &cfg.Service)

	v.CheckObject("cluster", &cfg.Cluster)
}

func (cfg *ClusterCfg) ValidateJSON(v *jsonvalidator.Validator) {
	v.WithChild("servers", func() {
		for id, address := range cfg.Servers {
			v.CheckStringNotEmpty(fmt.Sprintf("%d", id), string(address))
		}
	})
}

func NewService() *Service {
	s := &Service{}

	s.Cfg.Cluster.Servers = raft.DefaultServerSet()

	return s
}

func (s *Service) InitProgram(p *program.Program) {
	s.Program = p

	p.AddArgument("id", "the node number")
}

func (s *Service) DefaultCfg() interface{} {
	return &s.Cfg
}

func (s *Service) ValidateCfg() error {
	return nil
}

func (s *Service) ServiceCfg() *service.ServiceCfg {
	cfg := &s.Cfg.Service

	id, err := s.nodeId()
	if err != nil {
		return cfg
	}

	if cfg.HTTPServers == nil {
		cfg.HTTPServers = make(map[string]*shttp.ServerCfg)
	}

	raftAddress := s.Cfg.Cluster.Servers[id]
	host, _, _ := net.SplitHostPort(string(raftAddress))

	apiPort := strconv.Itoa(16000 + int(id))

	cfg.HTTPServers["api"] = &shttp.ServerCfg{
		Address:               net.JoinHostPort(host, apiPort),
		LogSuccessfulRequests: true,
		ErrorHandler:          shttp.JSONErrorHandler,
	}

	return cfg
}

func (s *Service) Init(ss *service.Service) error {
	s.Service = ss
	s.Log = ss.Log

	id, err := s.nodeId()
	if err != nil {
		return err
	}

	s.id = id

	s.store = NewStore()

	if err := s.initRaftServer(); err != nil {
		return err
	}

	if err := s.initAPIServer(); err != nil {
		return err
	}

	s.repl = NewREPL(s)

	return nil
}

func (s *Service) nodeId() (raft.NodeId, error) {
	idString := s.Program.ArgumentValue("id")

	idInt, err := strconv.Atoi(idString)
	if err != nil {
		return raft.NoNode, fmt.Errorf("invalid node number %q", idString)
	}

	id := raft.NodeId(idInt)

	if _, found := s.Cfg.Cluster.Servers[id]; !found {
		return raft.NoNode, fmt.Errorf("node %d is not part of the cluster",
			id)
	}

	return id, nil
}

func (s *Service) initRaftServer() error {
	logger := s.Log.Child("raft", log.Data{
		"node": int(s.id),
	})

	serverCfg := raft.ServerCfg{
		Id:      s.id,
		Servers: s.Cfg.Cluster.Servers,

		Logger: raftLogger{logger},

		ApplyFunc: s.applyEntries,
	}

	server, err := raft.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("cannot create raft server: %w", err)
	}

	s.raftServer = server

	return nil
}

func (s *Service) initAPIServer() error {
	api, err := NewAPIServer(s)
	if err != nil {
		return fmt.Errorf("cannot create api server: %w", err)
	}

	s.apiServer = api

	return nil
}

func (s *Service) Start(ss *service.Service) error {
	if err := s.raftServer.Start(ss.ErrorChan()); err != nil {
		return fmt.Errorf("cannot start raft server: %w", err)
	}

	if err := s.apiServer.Init(); err != nil {
		return fmt.Errorf("cannot initialize api server: %w", err)
	}

	s.repl.Start()

	return nil
}

func (s *Service) Stop(ss *service.Service) {
	s.raftServer.Stop()
}

func (s *Service) Terminate(ss *service.Service) {
}

func (s *Service) applyEntries(entries []raft.LogEntry) {
	s.store.Append(entries)
}

// raftLogger adapts a go-log logger to the raft logging surface.
type raftLogger struct {
	logger *log.Logger
}

func (l raftLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(1, format, args...)
}

func (l raftLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(format, args...)
}

func (l raftLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(format, args...)
}
