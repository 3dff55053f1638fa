package cache

import "github.com/redis/go-redis/v9"

// Server-side scripts giving each multi-step mutation all-or-nothing
// semantics. Every read-then-write of shared state in this package runs
// inside one of these scripts; Go code never reads a value and writes it
// back outside of them.

// reserveScript atomically serializes a count-based reservation.
//
// KEYS: 1=capacity counter, 2=show lock, 3=reservation id counter
// ARGV: 1=requested seats, 2=lock TTL ms, 3=owner, 4=show id,
//       5=reservation record TTL seconds
//
// The lock only guards the capacity check-and-decrement against
// concurrent reservers of the same show; it is deleted again before the
// script returns, on both the success and the insufficient-capacity
// path. The PEXPIRE is a backstop in case the connection dies
// mid-script.
var reserveScript = redis.NewScript(`
local requested = tonumber(ARGV[1])
local lock_ttl = tonumber(ARGV[2])

if redis.call('SETNX', KEYS[2], '1') == 0 then
    return redis.error_reply('LOCK_ACQUISITION_FAILED')
end
redis.call('PEXPIRE', KEYS[2], lock_ttl)

local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < requested then
    redis.call('DEL', KEYS[2])
    return redis.error_reply('INSUFFICIENT_CAPACITY')
end

local remaining = current - requested
redis.call('SET', KEYS[1], tostring(remaining))

local id = redis.call('INCR', KEYS[3])
local res_key = 'reservation:' .. id
redis.call('HMSET', res_key,
    'owner', ARGV[3],
    'show_id', ARGV[4],
    'mode', 'count',
    'count', ARGV[1],
    'created_at', redis.call('TIME')[1])
redis.call('EXPIRE', res_key, tonumber(ARGV[5]))

redis.call('DEL', KEYS[2])
return {id, remaining}
`)

// releaseCountScript restores capacity for a still-live reservation and
// deletes its record. If the record is already gone (confirmed, released
// or expired) nothing is restored, which is what makes release
// idempotent: capacity can never be handed back twice.
//
// KEYS: 1=capacity counter, 2=reservation record
// ARGV: 1=seats to restore
var releaseCountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
    local current = tonumber(redis.call('GET', KEYS[1]) or '0')
    redis.call('SET', KEYS[1], tostring(current + tonumber(ARGV[1])))
    redis.call('DEL', KEYS[2])
end
return redis.status_reply('OK')
`)

// confirmCountScript converts a count-based reservation into a confirmed
// cache booking record. The capacity counter is untouched: it already
// reflects the sale from the reserve step.
//
// KEYS: 1=reservation record, 2=booking record
// ARGV: 1=owner, 2=show id, 3=seat count
var confirmCountScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return redis.error_reply('RESERVATION_NOT_FOUND')
end
redis.call('HMSET', KEYS[2],
    'owner', ARGV[1],
    'show_id', ARGV[2],
    'seats', ARGV[3],
    'status', 'confirmed',
    'timestamp', redis.call('TIME')[1])
redis.call('DEL', KEYS[1])
return redis.status_reply('OK')
`)

// holdSeatsScript grants an exclusive hold on every requested seat or on
// none of them. Holds acquired earlier in the batch are rolled back as
// soon as one seat turns out to be taken, and the error names the
// conflicting seat so the client can show it.
//
// KEYS: 1=reservation id counter
// ARGV: 1=owner, 2=show id, 3=hold TTL seconds, 4..=seat ids
var holdSeatsScript = redis.NewScript(`
local owner = ARGV[1]
local show_id = ARGV[2]
local ttl = tonumber(ARGV[3])

local seats = {}
for i = 4, #ARGV do
    table.insert(seats, ARGV[i])
end

local id = redis.call('INCR', KEYS[1])
local granted = {}
for _, seat in ipairs(seats) do
    local hold_key = 'hold:show:' .. show_id .. ':seat:' .. seat
    if redis.call('SETNX', hold_key, id) == 0 then
        for _, k in ipairs(granted) do
            redis.call('DEL', k)
        end
        return redis.error_reply('SEAT_ALREADY_HELD:' .. seat)
    end
    redis.call('PEXPIRE', hold_key, ttl * 1000)
    table.insert(granted, hold_key)
end

local seats_csv = table.concat(seats, ',')
local res_key = 'reservation:' .. id
redis.call('HMSET', res_key,
    'owner', owner,
    'show_id', show_id,
    'mode', 'seats',
    'seats', seats_csv,
    'created_at', redis.call('TIME')[1])
redis.call('EXPIRE', res_key, ttl)

return {tostring(id), seats_csv}
`)

// confirmHoldScript deletes every per-seat hold belonging to a
// reservation and replaces the record with a confirmed booking hash.
// The seats are permanently sold from here on; the durable tickets table
// tracks them instead of the hold keys.
//
// KEYS: 1=reservation record
// ARGV: 1=owner
var confirmHoldScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return redis.error_reply('RESERVATION_NOT_FOUND')
end
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
    return redis.error_reply('NOT_AUTHORIZED')
end

local show_id = redis.call('HGET', KEYS[1], 'show_id')
local seats_csv = redis.call('HGET', KEYS[1], 'seats') or ''
for seat in string.gmatch(seats_csv, '([^,]+)') do
    redis.call('DEL', 'hold:show:' .. show_id .. ':seat:' .. seat)
end

local id = string.sub(KEYS[1], 13)
redis.call('HMSET', 'booking:' .. id,
    'owner', ARGV[1],
    'show_id', show_id,
    'seats', seats_csv,
    'status', 'confirmed',
    'timestamp', redis.call('TIME')[1])
redis.call('DEL', KEYS[1])
return redis.status_reply('OK')
`)

// releaseHoldScript frees all holds belonging to a reservation and
// deletes the record. Releasing an unknown or already-resolved
// reservation is a successful no-op.
//
// KEYS: 1=reservation record
var releaseHoldScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return redis.status_reply('OK')
end
local show_id = redis.call('HGET', KEYS[1], 'show_id')
local seats_csv = redis.call('HGET', KEYS[1], 'seats') or ''
if seats_csv ~= '' then
    for seat in string.gmatch(seats_csv, '([^,]+)') do
        redis.call('DEL', 'hold:show:' .. show_id .. ':seat:' .. seat)
    end
end
redis.call('DEL', KEYS[1])
return redis.status_reply('OK')
`)

// Hashes of the mutation scripts, for callers that mock or observe the
// shared store at the command level.
func ReserveScriptHash() string      { return reserveScript.Hash() }
func ReleaseCountScriptHash() string { return releaseCountScript.Hash() }
func ConfirmCountScriptHash() string { return confirmCountScript.Hash() }
func HoldSeatsScriptHash() string    { return holdSeatsScript.Hash() }
func ConfirmHoldScriptHash() string  { return confirmHoldScript.Hash() }
func ReleaseHoldScriptHash() string  { return releaseHoldScript.Hash() }
