package redisstore

// Key layout, all under the configured prefix:
//
//	config:{name}        hash  schedule, enabled, updated_at, updated_by
//	exec:{id}            hash  job_name, started_at, completed_at, duration_ms, status, error
//	execs                zset  execution ids scored by started_at (unix ms)
//	execs:job:{name}     zset  the same, per job

func (s *Store) configKey(name string) string { return s.prefix + "config:" + name }

func (s *Store) execKey(id string) string { return s.prefix + "exec:" + id }

func (s *Store) execsKey() string { return s.prefix + "execs" }

func (s *Store) jobExecsKey(name string) string { return s.prefix + "execs:job:" + name }
