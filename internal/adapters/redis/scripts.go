package redis

import "github.com/redis/go-redis/v9"

// Key layout under a namespace ns. Every key carries the {ns} hashtag so one
// namespace lives in a single cluster slot; scripts derive item and lane keys
// from that shared prefix.
//
//	{ns}:lane:<lane>     ZSET  ready item ids scored by enqueue sequence (FIFO)
//	{ns}:delayed:<lane>  ZSET  item ids scored by available-at (unix ms)
//	{ns}:seq             STRING  sequence counter for ready scores
//	{ns}:leases          ZSET  item id scored by lease expiry (unix ms)
//	{ns}:dead            ZSET  item id scored by parked-at (unix ms)
//	{ns}:item:<id>       HASH  payload, lane, attempts, enqueued_at, token, reason
//	{ns}:notify          pub/sub channel announcing new ready work

// enqueueScript stores an item and puts it at the back of its lane, or on the
// lane's delayed set when it is not yet due. Returns 1 when the item is ready,
// 0 when delayed and -1 when ARGV[6] is "1" and the item already exists.
// KEYS[1] item, KEYS[2] leases, KEYS[3] dead, KEYS[4] lane, KEYS[5] delayed, KEYS[6] seq.
// ARGV[1] id, ARGV[2] payload, ARGV[3] lane name, ARGV[4] now ms, ARGV[5] available-at ms, ARGV[6] if-absent.
var enqueueScript = redis.NewScript(`
if ARGV[6] == '1' and redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'lane', ARGV[3], 'enqueued_at', ARGV[4])
redis.call('HDEL', KEYS[1], 'token', 'reason', 'parked_at')
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
if tonumber(ARGV[5]) <= tonumber(ARGV[4]) then
	redis.call('ZREM', KEYS[5], ARGV[1])
	redis.call('ZADD', KEYS[4], redis.call('INCR', KEYS[6]), ARGV[1])
	return 1
end
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[5], ARGV[1])
return 0
`)

// reserveScript leases the oldest ready item of the first non-empty lane. Due
// delayed items are moved to the back of their lane first.
// KEYS[1] leases, KEYS[2] seq, then (lane, delayed) pairs in drain order.
// ARGV[1] now ms, ARGV[2] lease expiry ms, ARGV[3] token, ARGV[4] item key prefix, ARGV[5..] lane names.
var reserveScript = redis.NewScript(`
local lane = 4
for i = 3, #KEYS, 2 do
	lane = lane + 1
	local ready, delayed = KEYS[i], KEYS[i + 1]
	local due = redis.call('ZRANGEBYSCORE', delayed, '-inf', ARGV[1], 'LIMIT', 0, 100)
	for _, id in ipairs(due) do
		redis.call('ZREM', delayed, id)
		redis.call('ZADD', ready, redis.call('INCR', KEYS[2]), id)
	end
	while true do
		local ids = redis.call('ZRANGE', ready, 0, 0)
		if #ids == 0 then
			break
		end
		local id = ids[1]
		local item = ARGV[4] .. id
		redis.call('ZREM', ready, id)
		if redis.call('EXISTS', item) == 1 then
			redis.call('ZADD', KEYS[1], ARGV[2], id)
			redis.call('HSET', item, 'token', ARGV[3])
			local attempts = redis.call('HINCRBY', item, 'attempts', 1)
			local payload = redis.call('HGET', item, 'payload')
			return {id, ARGV[lane], payload, attempts}
		end
	end
end
return false
`)

// extendScript pushes the lease expiry forward when the token still owns the item.
// KEYS[1] leases, KEYS[2] item. ARGV[1] id, ARGV[2] token, ARGV[3] new expiry ms.
var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then
	return 0
end
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// ackScript deletes a leased item. KEYS[1] leases, KEYS[2] item. ARGV[1] id, ARGV[2] token.
var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// nackScript puts a leased item on its lane's delayed set, due at ARGV[3].
// KEYS[1] leases, KEYS[2] item, KEYS[3] delayed. ARGV[1] id, ARGV[2] token, ARGV[3] available-at ms.
var nackScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], 'token')
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// deadLetterScript parks a leased item. KEYS[1] leases, KEYS[2] item, KEYS[3] dead.
// ARGV[1] id, ARGV[2] token, ARGV[3] now ms, ARGV[4] reason.
var deadLetterScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], 'token')
redis.call('HSET', KEYS[2], 'reason', ARGV[4], 'parked_at', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// requeueExpiredScript returns items whose lease expired to the back of their lanes.
// KEYS[1] leases, KEYS[2] seq. ARGV[1] now ms, ARGV[2] limit, ARGV[3] item prefix, ARGV[4] lane key prefix.
var requeueExpiredScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local n = 0
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local item = ARGV[3] .. id
	local lane = redis.call('HGET', item, 'lane')
	if lane then
		redis.call('HDEL', item, 'token')
		redis.call('ZADD', ARGV[4] .. lane, redis.call('INCR', KEYS[2]), id)
		n = n + 1
	end
end
return n
`)

// replayScript moves a parked item to the back of its lane. KEYS[1] dead, KEYS[2] item, KEYS[3] seq.
// ARGV[1] id, ARGV[2] lane key prefix.
var replayScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
local lane = redis.call('HGET', KEYS[2], 'lane')
if not lane then
	return 0
end
redis.call('HDEL', KEYS[2], 'reason', 'parked_at')
redis.call('ZADD', ARGV[2] .. lane, redis.call('INCR', KEYS[3]), ARGV[1])
return 1
`)
