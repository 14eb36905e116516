package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL DEFAULT '',
				code VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL CHECK (version >= 1),
				is_active BOOLEAN NOT NULL DEFAULT false,
				entry_node_id VARCHAR(255),
				payload_schema JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_workflows_tenant_code_version ON workflows(tenant_id, code, version);

			CREATE TABLE workflow_nodes (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL CHECK (node_type IN ('email', 'sms', 'delay')),
				name VARCHAR(255) NOT NULL,
				template_code VARCHAR(255),
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_edges (
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				from_node_id VARCHAR(255) NOT NULL,
				to_node_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id),
				CHECK (from_node_id <> to_node_id)
			);

			CREATE UNIQUE INDEX idx_workflow_edges_unique ON workflow_edges(workflow_id, from_node_id, to_node_id);
		`,
		2: `
			CREATE TABLE node_templates (
				id UUID PRIMARY KEY,
				code VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL CHECK (node_type IN ('email', 'sms', 'delay')),
				description TEXT NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_node_templates_type ON node_templates(node_type);
			CREATE INDEX idx_node_templates_created_at ON node_templates(created_at);
		`,
		3: `
			CREATE TABLE trigger_instances (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				idempotency_key VARCHAR(255) NOT NULL,
				payload JSON NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('enqueued', 'processing', 'completed', 'failed')),
				attempts INTEGER NOT NULL DEFAULT 0 CHECK (attempts >= 0),
				available_at TIMESTAMP WITH TIME ZONE NOT NULL,
				cursor_node_id VARCHAR(255),
				claimed_by VARCHAR(255) NOT NULL DEFAULT '',
				claimed_at TIMESTAMP WITH TIME ZONE,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_trigger_instances_idempotency ON trigger_instances(workflow_id, idempotency_key);
			CREATE INDEX idx_trigger_instances_ready ON trigger_instances(available_at) WHERE status = 'enqueued';
			CREATE INDEX idx_trigger_instances_claimed ON trigger_instances(claimed_at) WHERE status = 'processing';
		`,
	}
}
