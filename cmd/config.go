// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/go-playground/validator/v10"

	"github.com/cubefs/metadht/common/kvstore"
	"github.com/cubefs/metadht/layout"
	"github.com/cubefs/metadht/proto"
	"github.com/cubefs/metadht/server"
	"github.com/cubefs/metadht/util"
)

const (
	defaultHttpBindPort = 9500
	defaultGrpcBindPort = 9501
	defaultStorePath    = "./run/store"
)

var validate = validator.New()

// Config service config
type Config struct {
	server.Config

	// XattrBaseName prefixes the xattr keys shared by the router and the
	// mds it runs with
	XattrBaseName string    `json:"xattr_base_name"`
	StorePath     string    `json:"store_path"`
	HttpBindPort  uint32    `json:"http_bind_port" validate:"max=65535"`
	GrpcBindPort  uint32    `json:"grpc_bind_port" validate:"max=65535,nefield=HttpBindPort"`
	MaxProcessors int       `json:"max_processors" validate:"min=0"`
	LogLevel      log.Level `json:"log_level"`
}

func initConfig(cfg *Config) {
	if cfg.HttpBindPort == 0 {
		cfg.HttpBindPort = defaultHttpBindPort
	}
	if cfg.GrpcBindPort == 0 {
		cfg.GrpcBindPort = defaultGrpcBindPort
	}
	if cfg.XattrBaseName == "" {
		cfg.XattrBaseName = proto.DefaultXattrBaseName
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath
	}
	if cfg.Addr == "" {
		ip, err := util.GetLocalIP()
		if err != nil {
			log.Warnf("no advertised address: %s", err)
		} else {
			cfg.Addr = net.JoinHostPort(ip, strconv.Itoa(int(cfg.GrpcBindPort)))
		}
	}

	for i := range cfg.MDS {
		m := &cfg.MDS[i]
		if m.XattrBaseName == "" {
			m.XattrBaseName = cfg.XattrBaseName
		}
		initKV(&m.KV, cfg.StorePath, m.Name)
	}
	for i := range cfg.DS {
		initKV(&cfg.DS[i].KV, cfg.StorePath, cfg.DS[i].Name)
	}
	if r := cfg.Router; r != nil {
		if r.XattrBaseName == "" {
			r.XattrBaseName = cfg.XattrBaseName
		}
		if r.Catalog.Layout == "" {
			r.Catalog.Layout = layout.HashType
		}
	}
}

func initKV(kv *kvstore.Config, storePath, name string) {
	if kv.Type == "" {
		kv.Type = kvstore.BadgerLsmKVType
	}
	if kv.Path == "" && !kv.Option.InMemory {
		kv.Path = filepath.Join(storePath, name)
	}
	kv.Option.CreateIfMissing = true
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if len(cfg.MDS) == 0 && len(cfg.DS) == 0 && cfg.Router == nil {
		return fmt.Errorf("config: no mds, ds or router configured")
	}
	if r := cfg.Router; r != nil && len(r.Subvolumes) < r.Catalog.MDSCount+r.Catalog.DSCount {
		return fmt.Errorf("router.subvolumes: %d listed, mds_count %d + ds_count %d required",
			len(r.Subvolumes), r.Catalog.MDSCount, r.Catalog.DSCount)
	}
	return nil
}

// formatValidationError reports every failed field of err.
func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
