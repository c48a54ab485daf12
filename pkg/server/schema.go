package rest

// schemaText is the text the `schema` verb returns: a human-readable
// description of the data model, grounded on spec §3's Node/Edge/Workflow/
// Execution Context/Execution State/Event definitions.
const schemaText = `Node: {id, type, config, input_slots, output_slots}
Edge: {source_node_idx, source_slot, target_node_idx, target_slot, filter?, loop?}
Workflow: {name, description, seed, tag, nodes[], edges[], variables}
ExecutionState: {execution_id, workflow_name, phase, pending[], ready[], running[], completed[], failed[], nodes[], started_at, ended_at?, error?}
NodeRecord: {node_id, status, output?, error?}
Event: {id, type, timestamp, workflow_name, execution_id, source_node_id?, data, error?}
`
